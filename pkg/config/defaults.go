// Package config provides centralized default values for courtsync
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Backend collaborator
	APIBaseURL     string
	SocketURL      string
	RequestTimeout time.Duration

	// Cache freshness and retention
	StaleTTL time.Duration
	GCTTL    time.Duration

	// Fetch retry policy
	FetchMaxAttempts    int
	FetchRetryBaseDelay time.Duration
	FetchRetryMaxDelay  time.Duration

	// Realtime channel
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	SendBufferSize    int

	// Polling fallback
	PollInterval time.Duration

	// Cache cleanup
	CleanupInterval time.Duration
	CleanupVerbose  bool

	// Local persistence mirror
	MirrorPath string
	AESKey     string

	// Diagnostics server
	DiagnosticsPort    string
	CORSOrigins        string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
)

func init() {
	loadEnvFile()

	// Backend collaborator
	APIBaseURL = getEnvString("API_BASE_URL", "http://localhost:5000/api")
	SocketURL = getEnvString("SOCKET_URL", "ws://localhost:5000/socket")
	RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)

	// Cache freshness and retention
	StaleTTL = getEnvDuration("CACHE_STALE_TTL", 5*time.Minute)
	GCTTL = getEnvDuration("CACHE_GC_TTL", 10*time.Minute)

	// Fetch retry policy
	FetchMaxAttempts = getEnvInt("FETCH_MAX_ATTEMPTS", 3)
	FetchRetryBaseDelay = getEnvDuration("FETCH_RETRY_BASE_DELAY", 1*time.Second)
	FetchRetryMaxDelay = getEnvDuration("FETCH_RETRY_MAX_DELAY", 30*time.Second)

	// Realtime channel
	ReconnectAttempts = getEnvInt("SOCKET_RECONNECT_ATTEMPTS", 3)
	ReconnectDelay = getEnvDuration("SOCKET_RECONNECT_DELAY", 2*time.Second)
	HandshakeTimeout = getEnvDuration("SOCKET_HANDSHAKE_TIMEOUT", 10*time.Second)
	SendBufferSize = getEnvInt("SOCKET_SEND_BUFFER", 64)

	// Polling fallback
	PollInterval = getEnvDuration("POLL_INTERVAL", 30*time.Second)

	// Cache cleanup
	CleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", 1*time.Minute)
	CleanupVerbose = getEnvBool("CACHE_CLEANUP_VERBOSE", false)

	// Local persistence mirror
	MirrorPath = getEnvString("MIRROR_PATH", "courtsync.db")
	AESKey = getEnvString("AES_KEY", "")

	// Diagnostics server
	DiagnosticsPort = getEnvString("DIAGNOSTICS_PORT", "8090")
	CORSOrigins = getEnvString("CORS_ORIGINS", "http://localhost:3000")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
}
