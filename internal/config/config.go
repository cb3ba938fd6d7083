package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider exposes application configuration to the rest of the system.
// Components depend on this interface rather than the concrete Config so
// tests can supply their own values.
type Provider interface {
	GetServerAddr() string

	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetJWTSecret() string
	GetJWTIssuer() string
	GetJWTTTL() time.Duration

	GetDefaultRoom() string
	GetTypingTimeout() time.Duration
	GetPresenceSweepInterval() time.Duration
	GetPresenceStaleAfter() time.Duration
	GetOnlineWindow() time.Duration
	GetAllowedOrigins() []string
}

// Config holds all configuration for the application.
type Config struct {
	ServerAddr string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	DefaultRoom           string
	TypingTimeout         time.Duration
	PresenceSweepInterval time.Duration
	PresenceStaleAfter    time.Duration
	OnlineWindow          time.Duration
	AllowedOrigins        []string
}

var _ Provider = (*Config)(nil)

// New loads configuration from environment variables, reading a .env file
// first when one is present. It returns an error naming every required
// variable that is missing or every duration that failed to parse.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment without
// touching .env files.
func FromEnv() (*Config, error) {
	var problems []string
	duration := func(key string, def time.Duration) time.Duration {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return d
	}

	cfg := &Config{
		ServerAddr:            getEnv("SERVER_ADDR", ":8080"),
		DBUrl:                 os.Getenv("SURREAL_URL"),
		DBNs:                  os.Getenv("SURREAL_NS"),
		DBDb:                  os.Getenv("SURREAL_DB"),
		DBUser:                os.Getenv("SURREAL_USER"),
		DBPass:                os.Getenv("SURREAL_PASS"),
		DBQueryTimeout:        duration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout:      duration("DB_EXECUTE_TIMEOUT", 10*time.Second),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTIssuer:             getEnv("JWT_ISSUER", "roomchat"),
		JWTTTL:                duration("JWT_TTL", 7*24*time.Hour),
		DefaultRoom:           getEnv("DEFAULT_ROOM", "1"),
		TypingTimeout:         duration("TYPING_TIMEOUT", 3*time.Second),
		PresenceSweepInterval: duration("PRESENCE_SWEEP_INTERVAL", 5*time.Minute),
		PresenceStaleAfter:    duration("PRESENCE_STALE_AFTER", 5*time.Minute),
		OnlineWindow:          duration("ONLINE_WINDOW", 2*time.Minute),
		AllowedOrigins:        splitList(os.Getenv("ALLOWED_ORIGINS")),
	}

	for key, val := range map[string]string{
		"SURREAL_URL": cfg.DBUrl,
		"SURREAL_NS":  cfg.DBNs,
		"SURREAL_DB":  cfg.DBDb,
		"JWT_SECRET":  cfg.JWTSecret,
	} {
		if val == "" {
			problems = append(problems, key+" is not set")
		}
	}

	if err := cfg.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Validate checks that every duration setting is positive.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		d    time.Duration
	}{
		{"DB_QUERY_TIMEOUT", c.DBQueryTimeout},
		{"DB_EXECUTE_TIMEOUT", c.DBExecuteTimeout},
		{"JWT_TTL", c.JWTTTL},
		{"TYPING_TIMEOUT", c.TypingTimeout},
		{"PRESENCE_SWEEP_INTERVAL", c.PresenceSweepInterval},
		{"PRESENCE_STALE_AFTER", c.PresenceStaleAfter},
		{"ONLINE_WINDOW", c.OnlineWindow},
	}
	for _, chk := range checks {
		if chk.d <= 0 {
			return fmt.Errorf("%s must be a positive duration", chk.name)
		}
	}
	return nil
}

func (c *Config) GetServerAddr() string              { return c.ServerAddr }
func (c *Config) GetDBURL() string                   { return c.DBUrl }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }
func (c *Config) GetJWTSecret() string               { return c.JWTSecret }
func (c *Config) GetJWTIssuer() string               { return c.JWTIssuer }
func (c *Config) GetJWTTTL() time.Duration           { return c.JWTTTL }
func (c *Config) GetDefaultRoom() string             { return c.DefaultRoom }
func (c *Config) GetTypingTimeout() time.Duration    { return c.TypingTimeout }
func (c *Config) GetPresenceSweepInterval() time.Duration {
	return c.PresenceSweepInterval
}
func (c *Config) GetPresenceStaleAfter() time.Duration { return c.PresenceStaleAfter }
func (c *Config) GetOnlineWindow() time.Duration       { return c.OnlineWindow }
func (c *Config) GetAllowedOrigins() []string          { return c.AllowedOrigins }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
