package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DB struct {
	DbHOST     string
	DbPORT     string
	DbUSER     string
	DbPASSWORD string
	DbNAME     string
	DbSSLMODE  string
}

type MinIO struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	Region     string
	URLExpiry  time.Duration
}

// Feed holds the knobs of the feed and ranking aggregators.
type Feed struct {
	PageSize             int
	FetchTimeout         time.Duration
	RankingTimeout       time.Duration
	ReconcileConcurrency int
	PostPoint            int
	StreamPollInterval   time.Duration
	// IdleTTL is how long an unused viewer feed is kept in memory.
	IdleTTL              time.Duration
	SweepInterval        time.Duration
}

type Config struct {
	ServerPort      int
	DB              DB
	MinIO           MinIO
	Feed            Feed
	DirectoryDriver string
	MigrationsPath  string
	JWTSecretKey    string
	MaxUploadSize   int64
	LogLevel        string
}

func (db DB) ConnString() string {
	return "host=" + db.DbHOST +
		" port=" + db.DbPORT +
		" user=" + db.DbUSER +
		" password=" + db.DbPASSWORD +
		" dbname=" + db.DbNAME +
		" sslmode=" + db.DbSSLMODE
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
			return duration
		}
	}
	return fallback
}

func LoadDB() DB {
	return DB{
		DbHOST:     getEnv("DB_HOST", "localhost"),
		DbPORT:     getEnv("DB_PORT", "5432"),
		DbUSER:     getEnv("DB_USER", "postgres"),
		DbPASSWORD: getEnv("DB_PASSWORD", "password"),
		DbNAME:     getEnv("DB_NAME", "vridge"),
		DbSSLMODE:  getEnv("DB_SSLMODE", "disable"),
	}
}

func LoadMinIO() MinIO {
	return MinIO{
		Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		BucketName: getEnv("MINIO_BUCKET_NAME", "photos"),
		UseSSL:     getEnvBool("MINIO_USE_SSL", false),
		Region:     getEnv("MINIO_REGION", "us-east-1"),
		URLExpiry:  getEnvDuration("MINIO_URL_EXPIRY", 7*24*time.Hour),
	}
}

func LoadFeed() Feed {
	return Feed{
		PageSize:             getEnvAsInt("FEED_PAGE_SIZE", 10),
		FetchTimeout:         getEnvDuration("FETCH_TIMEOUT", 5*time.Second),
		RankingTimeout:       getEnvDuration("RANKING_TIMEOUT", 15*time.Second),
		ReconcileConcurrency: getEnvAsInt("RECONCILE_CONCURRENCY", 8),
		PostPoint:            getEnvAsInt("POST_POINT", 10),
		StreamPollInterval:   getEnvDuration("STREAM_POLL_INTERVAL", 2*time.Second),
		IdleTTL:              getEnvDuration("FEED_IDLE_TTL", 30*time.Minute),
		SweepInterval:        getEnvDuration("FEED_SWEEP_INTERVAL", time.Minute),
	}
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	return &Config{
		ServerPort:      getEnvAsInt("SERVER_PORT", 8080),
		DB:              LoadDB(),
		MinIO:           LoadMinIO(),
		Feed:            LoadFeed(),
		DirectoryDriver: getEnv("DIRECTORY_DRIVER", "postgres"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations/001_create_directory.sql"),
		JWTSecretKey:    getEnv("JWT_SECRET_KEY", ""),
		MaxUploadSize:   parseMaxUploadSize(getEnv("MAX_UPLOAD_SIZE", "10485760")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func parseMaxUploadSize(value string) int64 {
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil || size <= 0 {
		return 10 * 1024 * 1024
	}
	return size
}
