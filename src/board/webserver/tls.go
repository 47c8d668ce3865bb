package webserver

import (
	"context"
	"crypto/tls"
	"log"
	"os"
	"sync"
	"time"
)

// CertReloader serves a key pair that is re-read from disk whenever either
// file's modification time advances.
type CertReloader struct {
	certFile string
	keyFile  string

	mu      sync.RWMutex
	cert    *tls.Certificate
	certMod time.Time
	keyMod  time.Time
}

func NewCertReloader(certFile, keyFile string) (*CertReloader, error) {
	r := &CertReloader{certFile: certFile, keyFile: keyFile}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *CertReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	certMod, keyMod := modTime(r.certFile), modTime(r.keyFile)

	r.mu.Lock()
	r.cert = &cert
	r.certMod, r.keyMod = certMod, keyMod
	r.mu.Unlock()

	log.Printf("webserver: tls certificate loaded from %s", r.certFile)
	return nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// changed reports whether the files on disk are newer than the loaded pair.
func (r *CertReloader) changed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return modTime(r.certFile).After(r.certMod) || modTime(r.keyFile).After(r.keyMod)
}

// Watch polls the files every interval until ctx is done.
func (r *CertReloader) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.reload(); err != nil {
				log.Printf("webserver: tls reload: %v", err)
			}
		}
	}
}

func (r *CertReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

func (r *CertReloader) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: r.getCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
