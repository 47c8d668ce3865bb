package webserver

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/stake-plus/govboard/src/board/chain"
)

const (
	methodPolkadot = "polkadotjs"
	methodSolana   = "solana"
	tokenTTL       = time.Hour
)

func strip0x(s string) string {
	if len(s) > 1 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}

func verifySignature(method, addr, sig, nonce string) error {
	switch method {
	case methodSolana:
		return verifyEd25519(addr, sig, nonce)
	case methodPolkadot:
		return verifySr25519(addr, sig, nonce)
	default:
		return fmt.Errorf("unsupported method %q", method)
	}
}

// verifySr25519 accepts signatures over the bare nonce and over the
// <Bytes>-wrapped form the polkadot.js extension produces for signRaw.
func verifySr25519(addr, sigHex, nonce string) error {
	pubKeyBytes, err := chain.DecodeSS58(addr)
	if err != nil {
		log.Printf("Failed to decode address %s: %v", addr, err)
		return err
	}

	sigBytes, err := hex.DecodeString(strip0x(sigHex))
	if err != nil {
		return err
	}
	if len(sigBytes) != 64 {
		return fmt.Errorf("invalid signature length: %d", len(sigBytes))
	}

	var pkRaw [32]byte
	copy(pkRaw[:], pubKeyBytes)
	var sigRaw [64]byte
	copy(sigRaw[:], sigBytes)

	var pk schnorrkel.PublicKey
	if err = pk.Decode(pkRaw); err != nil {
		return err
	}
	var sig schnorrkel.Signature
	if err = sig.Decode(sigRaw); err != nil {
		return err
	}

	for _, msg := range []string{nonce, "<Bytes>" + nonce + "</Bytes>"} {
		ctx := schnorrkel.NewSigningContext([]byte("substrate"), []byte(msg))
		if valid, err := pk.Verify(&sig, ctx); err == nil && valid {
			return nil
		}
	}
	return fmt.Errorf("signature verification failed")
}

// verifyEd25519 checks a Solana wallet signature. The address is the
// base58 public key; the signature may be hex or base58.
func verifyEd25519(addr, sigText, nonce string) error {
	pub, err := base58.Decode(addr)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid solana address")
	}

	var sig []byte
	if strings.HasPrefix(sigText, "0x") {
		sig, err = hex.DecodeString(sigText[2:])
	} else {
		sig, err = base58.Decode(sigText)
	}
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature encoding")
	}

	if !ed25519.Verify(pub, []byte(nonce), sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func issueJWT(addr string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"addr": addr,
		"exp":  time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(secret)
}
