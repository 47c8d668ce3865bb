package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stake-plus/govboard/src/board/data"
)

type Config struct {
	MySQLDSN      string
	RedisURL      string
	KeyPrefix     string
	JWTSecret     string
	Port          string
	AssetDir      string
	RPCURL        string
	TokenSymbol   string
	TokenDecimals int32
	Admins        []string
	CORSOrigins   []string
	EnableSSL     bool
	SSLCert       string
	SSLKey        string
	SweepInterval time.Duration
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		if def == "" {
			log.Fatalf("missing env %s", key)
		}
		return def
	}
	return v
}

// setting prefers the settings table, then the environment, then def.
// Unlike getenv it never aborts; an empty result is allowed.
func setting(s *data.Settings, name, envKey, def string) string {
	if v := s.Get(name); v != "" {
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}

// Load builds the runtime configuration. settings may be nil when no
// database is configured.
func Load(s *data.Settings) Config {
	decimals, err := strconv.Atoi(setting(s, "token_decimals", "TOKEN_DECIMALS", "10"))
	if err != nil {
		log.Printf("config: bad token decimals: %v", err)
		decimals = 10
	}
	sweep, err := time.ParseDuration(setting(s, "sweep_interval", "SWEEP_INTERVAL", "1h"))
	if err != nil || sweep <= 0 {
		log.Printf("config: bad sweep interval: %v", err)
		sweep = time.Hour
	}
	sslEnabled, _ := strconv.ParseBool(setting(s, "enable_ssl", "ENABLE_SSL", "false"))

	return Config{
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		RedisURL:      getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		KeyPrefix:     setting(s, "key_prefix", "KEY_PREFIX", "board"),
		JWTSecret:     getenv("JWT_SECRET", ""),
		Port:          getenv("PORT", "8080"),
		AssetDir:      setting(s, "asset_dir", "ASSET_DIR", "public_html/images"),
		RPCURL:        setting(s, "rpc_url", "RPC_URL", "wss://rpc.polkadot.io"),
		TokenSymbol:   setting(s, "token_symbol", "TOKEN_SYMBOL", "BEBE"),
		TokenDecimals: int32(decimals),
		Admins:        SplitList(setting(s, "admin_addresses", "ADMIN_ADDRESSES", "")),
		CORSOrigins:   SplitList(setting(s, "cors_origins", "CORS_ORIGINS", "http://localhost:3000")),
		EnableSSL:     sslEnabled,
		SSLCert:       setting(s, "ssl_cert", "SSL_CERT", ""),
		SSLKey:        setting(s, "ssl_key", "SSL_KEY", ""),
		SweepInterval: sweep,
	}
}

// SplitList parses a comma or whitespace separated list, dropping blanks.
func SplitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
