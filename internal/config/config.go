package config // package config loads application configuration from environment variables

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values. It is loaded once at
// startup and passed down; nothing reads the environment afterwards.
type Config struct {
	Env         string // development, production, test
	Port        string // HTTP port to listen on
	StoreDriver string // mysql | mongo | memory

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	MongoURI string
	MongoDB  string

	JWTSecret        string // signs access tokens
	JWTRefreshSecret string // signs refresh tokens
	AccessTTLMin     int
	RefreshTTLDays   int
	BcryptCost       int

	EventLocation   *time.Location // zone used to read event date/time pairs
	CORSOrigins     []string
	GoogleClientID  string
	ShutdownTimeout time.Duration

	AMQP      AMQPConfig
	MinIO     MinIOConfig
	Redis     RedisConfig
	Sweep     SweepConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Log       LoggingConfig
}

// AMQPConfig points at the RabbitMQ broker. An empty URL disables publishing.
type AMQPConfig struct {
	URL   string
	Queue string
}

// MinIOConfig configures the thumbnail bucket. PublicURL is the base used
// to build object URLs handed to clients.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// SweepConfig drives the retention sweeper.
type SweepConfig struct {
	Enabled          bool
	Grace            time.Duration
	Interval         time.Duration
	StartupDelay     time.Duration
	DeleteThumbnails bool
}

// IsProduction reports whether cookies and cache sizing should use production settings.
func (c Config) IsProduction() bool { return strings.EqualFold(c.Env, "production") }

// Load reads .env (when present) and the process environment. Missing
// required variables terminate the process with a fatal log entry.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:              getenv("APP_ENV", "development"),
		Port:             getenv("APP_PORT", "8000"),
		StoreDriver:      strings.ToLower(getenv("STORE_DRIVER", DriverMySQL)),
		JWTSecret:        must("JWT_SECRET"),
		JWTRefreshSecret: must("JWT_REFRESH_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:       envInt("BCRYPT_COST", 10),
		EventLocation:    loadLocation(getenv("EVENT_TIMEZONE", "UTC")),
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
		GoogleClientID:   os.Getenv("GOOGLE_CLIENT_ID"),
		ShutdownTimeout:  envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
		AMQP: AMQPConfig{
			URL:   firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
			Queue: getenv("AMQP_QUEUE", "campus.events"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getenv("MINIO_BUCKET", "campus-events"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
			PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},
		Redis: LoadRedisConfig(),
		Sweep: SweepConfig{
			Enabled:          envBool("SWEEP_ENABLED", true),
			Grace:            envDur("SWEEP_GRACE", 24*time.Hour),
			Interval:         envDur("SWEEP_INTERVAL", 6*time.Hour),
			StartupDelay:     envDur("SWEEP_STARTUP_DELAY", 10*time.Second),
			DeleteThumbnails: envBool("SWEEP_DELETE_THUMBNAILS", true),
		},
		RateLimit: LoadRateLimitConfig(),
		Log:       LoadLoggingConfig(),
	}
	cfg.Cache = LoadCacheConfig(cfg.IsProduction())

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = getenv("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	case DriverMongo:
		cfg.MongoURI = must("MONGO_URI")
		cfg.MongoDB = getenv("MONGO_DB", "campus_events")
	case DriverMemory:
	default:
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Str("tz", name).Err(err).Msg("unknown EVENT_TIMEZONE, using UTC")
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
