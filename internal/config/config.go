package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration, loaded from the process environment
// (optionally seeded from a .env file via godotenv) with sane defaults.
type Config struct {
	Addr      string
	DBDSN     string
	MediaRoot string

	FFmpegPath  string
	FFprobePath string

	RedisAddr string

	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	RateLimitAuthCount  int
	RateLimitAuthWindow time.Duration

	ScanWatch          bool
	ScanExcludePattern string
	ScanEmbeddedCover  bool
	ScanWorkers        int

	MemtableSizeThreshold  int
	MemtableFlushTimeout   time.Duration
	MemtablePersistWorkers int

	CoverCachePath       string
	CoverMaxEdgePx       int
	CoverPlaceholderPath string

	SearchIndexPath string

	StreamTokenSecret string
	StreamTokenTTL    time.Duration

	StreamCacheEnabled       bool
	StreamCachePath          string
	StreamCacheSizeMB        int64
	StreamDefaultFormat      string
	StreamDefaultBitRateKbps int

	IgnoredArticles []string
}

// FromEnv loads a .env file if present (ignored if absent — production
// deployments set real environment variables) then builds Config with sane
// defaults.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:                   getenv("ADDR", ":8080"),
		DBDSN:                  getenv("DATABASE_URL", "postgres://localhost:5432/melodia"),
		MediaRoot:              getenv("MEDIA_ROOT", "./media"),
		FFmpegPath:             getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:            getenv("FFPROBE_PATH", "ffprobe"),
		RedisAddr:              getenv("REDIS_ADDR", "localhost:6379"),
		S3Endpoint:             getenv("S3_ENDPOINT", ""),
		S3Bucket:               getenv("S3_BUCKET", ""),
		S3AccessKey:            getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:            getenv("S3_SECRET_KEY", ""),
		S3UseSSL:               boolEnv("S3_USE_SSL", true),
		RateLimitAuthCount:     intEnv("RATE_LIMIT_AUTH_COUNT", 10),
		RateLimitAuthWindow:    durationEnv("RATE_LIMIT_AUTH_WINDOW", time.Minute),
		ScanWatch:              boolEnv("SCAN_WATCH", false),
		ScanExcludePattern:     getenv("SCAN_EXCLUDE_PATTERN", ""),
		ScanEmbeddedCover:      boolEnv("SCAN_EMBEDDED_COVER", true),
		ScanWorkers:            intEnv("SCAN_WORKERS", 8),
		MemtableSizeThreshold:  intEnv("MEMTABLE_SIZE_THRESHOLD", 1000),
		MemtableFlushTimeout:   durationEnv("MEMTABLE_FLUSH_TIMEOUT", 30*time.Second),
		MemtablePersistWorkers: intEnv("MEMTABLE_PERSIST_WORKERS", 3),
		CoverCachePath:         getenv("COVER_CACHE_PATH", "./cache/covers"),
		CoverMaxEdgePx:         intEnv("COVER_MAX_EDGE_PX", 1000),
		CoverPlaceholderPath:   getenv("COVER_PLACEHOLDER_PATH", "./assets/placeholder-cover.jpg"),
		SearchIndexPath:        getenv("SEARCH_INDEX_PATH", "./cache/search"),

		StreamTokenSecret: getenv("STREAM_TOKEN_SECRET", "melodia-dev-stream-token-secret"),
		StreamTokenTTL:    durationEnv("STREAM_TOKEN_TTL", 10*time.Minute),

		StreamCacheEnabled:       boolEnv("STREAM_CACHE_ENABLED", true),
		StreamCachePath:          getenv("STREAM_CACHE_PATH", "./cache/stream"),
		StreamCacheSizeMB:        int64(intEnv("STREAM_CACHE_SIZE_MB", 2000)),
		StreamDefaultFormat:      getenv("STREAM_DEFAULT_FORMAT", ""),
		StreamDefaultBitRateKbps: intEnv("STREAM_DEFAULT_BIT_RATE_KBPS", 0),
	}
	if cfg.DBDSN == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func boolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
