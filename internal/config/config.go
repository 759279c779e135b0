package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	UploadPath string // Physical directory for uploaded spreadsheets
	ExportPath string // Physical directory for built export archives

	MaxUploadBytes int64         // Upload size limit, defaults to 100 MB
	ImportPoll     time.Duration // Client poll interval for import jobs
	ExportPoll     time.Duration // Client poll interval for export jobs
	ExportTTL      time.Duration // How long a ready export archive stays downloadable
}

// AcceptedExtensions lists the spreadsheet formats the service imports.
var AcceptedExtensions = []string{".csv", ".xlsx", ".xls"}

// AcceptedMimeTypes mirrors AcceptedExtensions for clients that send a
// content type instead of a meaningful filename.
var AcceptedMimeTypes = []string{
	"text/csv",
	"application/csv",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", "secret"),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:         getEnv("DB_NAME", "go-dataport"),
		SkipAuth:       getEnv("SKIP_AUTH", "false") == "true",
		Environment:    getEnv("ENVIRONMENT", "development"),
		AppId:          getEnv("APP_ID", "go-dataport"),
		UploadPath:     getEnv("FS_PATH", "./uploads"),
		ExportPath:     getEnv("EXPORT_PATH", "./exports"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_MB", 100) * 1024 * 1024,
		ImportPoll:     getEnvMillis("IMPORT_POLL_MS", 2000),
		ExportPoll:     getEnvMillis("EXPORT_POLL_MS", 3000),
		ExportTTL:      time.Duration(getEnvInt64("EXPORT_TTL_HOURS", 24)) * time.Hour,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvMillis(key string, fallback int64) time.Duration {
	return time.Duration(getEnvInt64(key, fallback)) * time.Millisecond
}
