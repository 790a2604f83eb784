package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"nexus-gateway/kv"
	"nexus-gateway/storage"
)

// newLogger returns the service logger. DEBUG raises both it and the
// package-level logger used by probe and start-up code.
func newLogger() *log.Logger {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}
	return logger
}

func envStr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}

// redisOptions accepts a redis:// URL or the Azure form
// "host:port,password=...,ssl=true".
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		pair := strings.SplitN(p, "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(pair[0])) {
		case "password":
			opts.Password = pair[1]
		case "ssl":
			if strings.EqualFold(pair[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func openMirrorStore(backend, path string, rc *redis.Client) (kv.Store, error) {
	switch backend {
	case "memory":
		return kv.NewMemory(), nil
	case "file":
		return kv.NewFile(path)
	case "sqlite":
		return kv.OpenSQLite(path)
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("MIRROR_BACKEND=redis requires REDIS_CONNECTION_STRING")
		}
		return kv.NewRedis(rc, "nexus:mirror:"), nil
	default:
		return nil, fmt.Errorf("unknown MIRROR_BACKEND %q", backend)
	}
}

func openRemote(backend string) (storage.Remote, error) {
	switch backend {
	case "rest":
		url, key := os.Getenv("REMOTE_URL"), os.Getenv("REMOTE_API_KEY")
		if url == "" || key == "" {
			return nil, fmt.Errorf("REMOTE_URL and REMOTE_API_KEY are required")
		}
		return storage.NewREST(url, key, &http.Client{Timeout: envDur("REMOTE_TIMEOUT", 15*time.Second)})
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			return nil, fmt.Errorf("STORAGE_CONNECTION_STRING is required")
		}
		return storage.NewTables(connStr, os.Getenv("TABLE_PREFIX"))
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		return storage.OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown REMOTE_BACKEND %q", backend)
	}
}
