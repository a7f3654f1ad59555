package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	DBDriver     string
	SqlitePath   string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	ArtifactBackend string
	ArtifactDir     string

	AIAPIKey   string
	EmbedModel string
	GenModel   string
	LLMRate    float64

	// ProgressStore is "db" for the SQL tracker or "memory" for a process-local one.
	ProgressStore string

	Port      string
	JWTSecret string
	LogLevel  string
	LogFormat string

	Pipeline PipelineConfig
}

// PipelineConfig tunes chunking, concurrency and retry behaviour of job processing.
type PipelineConfig struct {
	ChunkMaxTokens     int
	ChunkOverlapTokens int
	IndexChunkTokens   int
	IndexOverlapTokens int
	MapMaxWorkers      int
	StageWorkers       int
	QueueSize          int
	ConsistencyCeiling int
	ModelCallTimeout   time.Duration
	ModelRetryBackoff  time.Duration
	ContextTopK        int
	StageAttempts      int
	StageBackoff       time.Duration
	StoreAttempts      int
	StoreBackoff       time.Duration
	ProgressRetention  time.Duration
	MaxUploadBytes     int64
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "pgx")),
		SqlitePath:      getEnv("SQLITE_PATH", "simplifai.db"),
		SslCertPath:     getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey:    getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:    getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:       getEnv("AWS_REGION", "us-east-2"),
		BucketName:      getEnv("BUCKET_NAME", "simplifai-artifacts"),
		ArtifactBackend: strings.ToLower(getEnv("ARTIFACT_BACKEND", "s3")),
		ArtifactDir:     getEnv("ARTIFACT_DIR", "data/artifacts"),
		AIAPIKey:        getEnv("GEMINI_API_KEY", ""),
		EmbedModel:      getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:        getEnv("GEN_MODEL", "gemini-1.5-flash"),
		LLMRate:         getEnvFloat("LLM_RATE_LIMIT", 0),
		ProgressStore:   strings.ToLower(getEnv("PROGRESS_STORE", "db")),
		Port:            getEnv("PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Pipeline: PipelineConfig{
			ChunkMaxTokens:     getEnvInt("CHUNK_MAX_TOKENS", 4000),
			ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 100),
			IndexChunkTokens:   getEnvInt("INDEX_CHUNK_TOKENS", 1000),
			IndexOverlapTokens: getEnvInt("INDEX_OVERLAP_TOKENS", 200),
			MapMaxWorkers:      getEnvInt("MAP_MAX_WORKERS", 4),
			StageWorkers:       getEnvInt("STAGE_WORKERS", 2),
			QueueSize:          getEnvInt("QUEUE_SIZE", 64),
			ConsistencyCeiling: getEnvInt("CONSISTENCY_CEILING_TOKENS", 6000),
			ModelCallTimeout:   getEnvDuration("MODEL_CALL_TIMEOUT", 60*time.Second),
			ModelRetryBackoff:  getEnvDuration("MODEL_RETRY_BACKOFF", 2*time.Second),
			ContextTopK:        getEnvInt("CONTEXT_TOP_K", 3),
			StageAttempts:      getEnvInt("STAGE_ATTEMPTS", 2),
			StageBackoff:       getEnvDuration("STAGE_BACKOFF", time.Second),
			StoreAttempts:      getEnvInt("STORE_ATTEMPTS", 3),
			StoreBackoff:       getEnvDuration("STORE_BACKOFF", time.Second),
			ProgressRetention:  getEnvDuration("PROGRESS_RETENTION", 24*time.Hour),
			MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "pgx":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL not set")
		}
	case "sqlite":
		if c.SqlitePath == "" {
			return fmt.Errorf("SQLITE_PATH not set")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be pgx or sqlite, got %q", c.DBDriver)
	}

	switch c.ArtifactBackend {
	case "s3", "fs":
	default:
		return fmt.Errorf("ARTIFACT_BACKEND must be s3 or fs, got %q", c.ArtifactBackend)
	}

	switch c.ProgressStore {
	case "db", "memory":
	default:
		return fmt.Errorf("PROGRESS_STORE must be db or memory, got %q", c.ProgressStore)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}

	p := c.Pipeline
	if p.ChunkMaxTokens <= 0 || p.ChunkOverlapTokens < 0 || p.ChunkOverlapTokens >= p.ChunkMaxTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be in [0, CHUNK_MAX_TOKENS)")
	}
	if p.IndexChunkTokens <= 0 || p.IndexOverlapTokens < 0 || p.IndexOverlapTokens >= p.IndexChunkTokens {
		return fmt.Errorf("INDEX_OVERLAP_TOKENS must be in [0, INDEX_CHUNK_TOKENS)")
	}
	if p.MapMaxWorkers < 1 || p.StageWorkers < 1 {
		return fmt.Errorf("MAP_MAX_WORKERS and STAGE_WORKERS must be positive")
	}
	if p.StoreAttempts < 1 || p.StageAttempts < 1 {
		return fmt.Errorf("STORE_ATTEMPTS and STAGE_ATTEMPTS must be positive")
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnDefault(key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		warnDefault(key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warnDefault(key, v, def)
		return def
	}
	return d
}

// The logger is built from this config, so bad values are reported on stderr.
func warnDefault(key, value string, def any) {
	fmt.Fprintf(os.Stderr, "WARN: %s=%q is invalid, using default %v\n", key, value, def)
}
