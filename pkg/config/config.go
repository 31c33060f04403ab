package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Selector SelectorConfig
	Scoring  ScoringConfig
	Splitter SplitterConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimitMB  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

// AuthConfig holds the static service token accepted next to JWTs.
type AuthConfig struct {
	APIToken string
}

type LLMConfig struct {
	Provider           string // openai or gigachat
	Model              string
	APIKey             string
	BaseURL            string
	Scope              string // GigaChat only
	InsecureSkipVerify bool   // GigaChat only
	Temperature        float32
	Timeout            time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
}

type SelectorConfig struct {
	GroupSize       int
	FallbackEnabled bool
}

type ScoringConfig struct {
	Workers         int
	IsolateFailures bool
}

type SplitterConfig struct {
	Granularity  string
	ChunkSize    int
	OverlapUnits int
}

type WorkerConfig struct {
	PoolSize    int
	Concurrency int
	MaxRetry    int
	TaskTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver    string // local or minio
	LocalDir  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work too (Docker/K8s).
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "600"))
	bodyLimit, _ := strconv.Atoi(getEnv("SERVER_BODY_LIMIT_MB", "64"))
	maxConns, _ := strconv.Atoi(getEnv("DB_MAX_CONNS", "20"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))

	llmTimeout, _ := strconv.Atoi(getEnv("LLM_TIMEOUT_SECONDS", "1800"))
	llmAttempts, _ := strconv.Atoi(getEnv("LLM_MAX_ATTEMPTS", "3"))
	llmBackoff, _ := strconv.Atoi(getEnv("LLM_BACKOFF_MS", "500"))
	llmTemperature, _ := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.1"), 32)

	groupSize, _ := strconv.Atoi(getEnv("PARSER_DOCUMENT_GROUP_COUNT", "10"))
	scoringWorkers, _ := strconv.Atoi(getEnv("SCORING_WORKERS", "64"))
	chunkSize, _ := strconv.Atoi(getEnv("SPLITTER_CHUNK_SIZE", "1024"))
	overlap, _ := strconv.Atoi(getEnv("SPLITTER_OVERLAP_UNITS", "2"))

	poolSize, _ := strconv.Atoi(getEnv("WORKER_POOL_SIZE", "64"))
	concurrency, _ := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "4"))
	maxRetry, _ := strconv.Atoi(getEnv("WORKER_MAX_RETRY", "3"))
	taskTimeout, _ := strconv.Atoi(getEnv("WORKER_TASK_TIMEOUT_MINUTES", "120"))

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, _ := strconv.Atoi(getEnv("RECALL_CACHE_TTL_SECONDS", "600"))

	logMaxSize, _ := strconv.Atoi(getEnv("LOG_MAX_SIZE_MB", "100"))
	logMaxBackups, _ := strconv.Atoi(getEnv("LOG_MAX_BACKUPS", "5"))
	logMaxAge, _ := strconv.Atoi(getEnv("LOG_MAX_AGE_DAYS", "30"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			BodyLimitMB:  bodyLimit,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "librag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: maxConns,
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		Auth: AuthConfig{
			APIToken: getEnv("AUTH_API_TOKEN", ""),
		},
		LLM: LLMConfig{
			Provider:           getEnv("LLM_PROVIDER", "openai"),
			Model:              getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:             getEnv("LLM_API_KEY", ""),
			BaseURL:            getEnv("LLM_BASE_URL", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true",
			Temperature:        float32(llmTemperature),
			Timeout:            time.Duration(llmTimeout) * time.Second,
			MaxAttempts:        llmAttempts,
			BackoffBase:        time.Duration(llmBackoff) * time.Millisecond,
		},
		Selector: SelectorConfig{
			GroupSize:       groupSize,
			FallbackEnabled: getEnv("SELECTOR_FALLBACK_ENABLED", "true") == "true",
		},
		Scoring: ScoringConfig{
			Workers:         scoringWorkers,
			IsolateFailures: getEnv("SCORING_ISOLATE_FAILURES", "false") == "true",
		},
		Splitter: SplitterConfig{
			Granularity:  getEnv("SPLITTER_GRANULARITY", "sentence"),
			ChunkSize:    chunkSize,
			OverlapUnits: overlap,
		},
		Worker: WorkerConfig{
			PoolSize:    poolSize,
			Concurrency: concurrency,
			MaxRetry:    maxRetry,
			TaskTimeout: time.Duration(taskTimeout) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Storage: StorageConfig{
			Driver:    getEnv("STORAGE_DRIVER", "local"),
			LocalDir:  getEnv("STORAGE_LOCAL_DIR", "uploads"),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "librag"),
			Region:    getEnv("MINIO_REGION", "us-east-1"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Cache: CacheConfig{
			Enabled: getEnv("RECALL_CACHE_ENABLED", "false") == "true",
			TTL:     time.Duration(cacheTTL) * time.Second,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  logMaxSize,
			MaxBackups: logMaxBackups,
			MaxAgeDays: logMaxAge,
			Compress:   getEnv("LOG_COMPRESS", "true") == "true",
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
