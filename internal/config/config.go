package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/google"
)

// Token store backends.
const (
	TokenStoreFile     = "file"
	TokenStoreRowStore = "rowstore"
)

// Pending-authorization store backends.
const (
	PendingStoreFile  = "file"
	PendingStoreRedis = "redis"
)

// Row store backends.
const (
	RowStorePostgREST = "postgrest"
	RowStoreSQLite    = "sqlite"
	RowStoreMemory    = "memory"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// OAuthConfig holds the Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	StrictState  bool
}

// RedisConfig addresses the Redis server used for pending authorizations.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the runtime configuration of inboxindex.
type Config struct {
	OAuth OAuthConfig

	TokenStore string
	TokenFile  string

	PendingStore string
	PendingDir   string
	PendingTTL   time.Duration
	Redis        RedisConfig

	RowStore    string
	SupabaseURL string
	SupabaseKey string
	SQLitePath  string

	NATSURL    string
	NATSStream string

	MetricsAddr string

	// ControlToken is the bearer token required by the control server's
	// mutating and mail routes.
	ControlToken string
}

// Load reads an optional dotenv file and then the environment. Variables
// already set in the environment win over the file. An empty envFile means
// ".env" in the working directory; a missing default file is ignored.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() (Config, error) {
	strict, err := getBool("GMAIL_OAUTH_STRICT_STATE", false)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	pendingTTL, err := getDuration("PENDING_TTL", 0)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		OAuth: OAuthConfig{
			ClientID:     strings.TrimSpace(os.Getenv("GMAIL_OAUTH_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("GMAIL_OAUTH_CLIENT_SECRET")),
			RedirectURI:  strings.TrimSpace(os.Getenv("GMAIL_OAUTH_REDIRECT_URI")),
			StrictState:  strict,
		},
		TokenStore:   getEnv("TOKEN_STORE", TokenStoreFile),
		TokenFile:    getEnv("TOKEN_FILE", google.DefaultTokenPath()),
		PendingStore: getEnv("PENDING_STORE", PendingStoreFile),
		PendingDir:   getEnv("PENDING_DIR", google.DefaultPendingDir()),
		PendingTTL:   pendingTTL,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		SupabaseURL: strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		SupabaseKey: strings.TrimSpace(os.Getenv("SUPABASE_KEY")),
		SQLitePath:  getEnv("SQLITE_PATH", defaultSQLitePath()),
		NATSURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSStream:  getEnv("NATS_STREAM", events.DefaultStream),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		ControlToken: strings.TrimSpace(os.Getenv("CONTROL_TOKEN")),
	}

	// The hosted backend is the natural default once it is configured.
	defaultRowStore := RowStoreSQLite
	if cfg.SupabaseURL != "" {
		defaultRowStore = RowStorePostgREST
	}
	cfg.RowStore = getEnv("ROWSTORE", defaultRowStore)

	return cfg, nil
}

// Validate checks backend choices and their required settings. OAuth
// client settings are checked later by the OAuth manager so that commands
// that never talk to Google still run without them.
func (c Config) Validate() error {
	switch c.TokenStore {
	case TokenStoreFile:
		if c.TokenFile == "" {
			return fmt.Errorf("%w: TOKEN_FILE is required for the file token store", ErrInvalid)
		}
	case TokenStoreRowStore:
	default:
		return fmt.Errorf("%w: TOKEN_STORE must be %q or %q, got %q", ErrInvalid, TokenStoreFile, TokenStoreRowStore, c.TokenStore)
	}

	switch c.PendingStore {
	case PendingStoreFile:
		if c.PendingDir == "" {
			return fmt.Errorf("%w: PENDING_DIR is required for the file pending store", ErrInvalid)
		}
	case PendingStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for the redis pending store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: PENDING_STORE must be %q or %q, got %q", ErrInvalid, PendingStoreFile, PendingStoreRedis, c.PendingStore)
	}
	if c.PendingTTL < 0 {
		return fmt.Errorf("%w: PENDING_TTL must not be negative", ErrInvalid)
	}

	switch c.RowStore {
	case RowStorePostgREST:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("%w: SUPABASE_URL and SUPABASE_KEY are required for the postgrest row store", ErrInvalid)
		}
	case RowStoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH is required for the sqlite row store", ErrInvalid)
		}
	case RowStoreMemory:
	default:
		return fmt.Errorf("%w: ROWSTORE must be %q, %q or %q, got %q", ErrInvalid, RowStorePostgREST, RowStoreSQLite, RowStoreMemory, c.RowStore)
	}

	return nil
}

// GoogleSettings converts the OAuth section into manager settings.
func (c Config) GoogleSettings() google.Settings {
	return google.Settings{
		ClientID:     c.OAuth.ClientID,
		ClientSecret: c.OAuth.ClientSecret,
		RedirectURL:  c.OAuth.RedirectURI,
		StrictState:  c.OAuth.StrictState,
	}
}

// defaultSQLitePath keeps the database next to the token file.
func defaultSQLitePath() string {
	return filepath.Join(filepath.Dir(google.DefaultTokenPath()), "inboxindex.db")
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return def, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalid, key, v)
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a duration, got %q", ErrInvalid, key, v)
	}
	return d, nil
}
