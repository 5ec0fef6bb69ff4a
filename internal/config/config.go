package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables DynamoTables
	S3BucketName string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiryDays     int

	SNSRegion string

	// Admin credentials carry no defaults. When either is unset the admin
	// path is disabled entirely.
	AdminUsername     string
	AdminPasswordHash string // bcrypt hash

	// FaceThreshold is the match-distance calibration constant.
	FaceThreshold float64

	OTPTTL         time.Duration
	FacePendingTTL time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Voters     string
	Sessions   string
	Elections  string
	Candidates string
	Votes      string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			Voters:     getEnv("DYNAMO_TABLE_VOTERS", "voters"),
			Sessions:   getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Elections:  getEnv("DYNAMO_TABLE_ELECTIONS", "elections"),
			Candidates: getEnv("DYNAMO_TABLE_CANDIDATES", "candidates"),
			Votes:      getEnv("DYNAMO_TABLE_VOTES", "votes"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", "evote-blobs"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiryDays:     getEnvInt("JWT_EXPIRY_DAYS", 7),

		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		FaceThreshold: getEnvFloat("FACE_MATCH_THRESHOLD", 0.5),

		OTPTTL:         getEnvDuration("OTP_TTL", 5*time.Minute),
		FacePendingTTL: getEnvDuration("FACE_PENDING_TTL", 10*time.Minute),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
