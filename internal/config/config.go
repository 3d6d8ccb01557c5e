// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
)

// Config represents the application configuration
type Config struct {
	APIName          string        `env:"COMDEX_API_APP_NAME" default:"Comdex API"`
	APIVersion       string        `env:"COMDEX_API_APP_VERSION" default:"1.0.0"`
	ServerPort       string        `env:"COMDEX_API_SERVER_PORT" default:"3007"`
	ServerLogLevel   string        `env:"COMDEX_API_SERVER_LOG_LEVEL" default:"info"`
	BackendURL       string        `env:"COMDEX_API_BACKEND_URL" default:"http://localhost:8000/"`
	BackendTimeout   time.Duration `env:"COMDEX_API_BACKEND_TIMEOUT" default:"15s"`
	PostgresDsn      string        `env:"COMDEX_API_PG_DSN"`
	PostgresSchema   string        `env:"COMDEX_API_PG_SCHEMA" default:"comdex"`
	PostgresLogLevel string        `env:"COMDEX_API_PG_LOG_LEVEL" default:"warn"`
	RedisHost        string        `env:"COMDEX_API_REDIS_HOST" default:"localhost"`
	RedisPort        string        `env:"COMDEX_API_REDIS_PORT" default:"6379"`
	RedisPassword    string        `env:"COMDEX_API_REDIS_PASSWORD" default:""`

	// Policy decisions the backend leaves to the client
	PolicyTransitions        string `env:"COMDEX_API_POLICY_TRANSITIONS" default:"strict"`
	PolicyInvestDuringVoting bool   `env:"COMDEX_API_POLICY_INVEST_DURING_VOTING" default:"false"`
	PolicyInvestInDraft      bool   `env:"COMDEX_API_POLICY_INVEST_IN_DRAFT" default:"false"`
	PolicyAllowRevote        bool   `env:"COMDEX_API_POLICY_ALLOW_REVOTE" default:"false"`

	// Service account used by the status sync job
	SyncUsername string `env:"COMDEX_API_SYNC_USERNAME" default:""`
	SyncPassword string `env:"COMDEX_API_SYNC_PASSWORD" default:""`
	SyncSchedule string `env:"COMDEX_API_SYNC_SCHEDULE" default:"*/5 * * * *"`

	// Comma separated usernames allowed to run cron jobs on demand
	AdminUsernames string `env:"COMDEX_API_ADMIN_USERNAMES" default:""`

	InflightTTL time.Duration `env:"COMDEX_API_INFLIGHT_TTL" default:"30s"`
	SessionTTL  time.Duration `env:"COMDEX_API_SESSION_TTL" default:"168h"`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	err      error
)

// Get returns the application configuration
func Get() (*Config, error) {
	zaplogger.Info(SingleLine)
	zaplogger.Info("Loading Configuration")

	once.Do(func() {
		instance, err = loadConfig()
	})
	return instance, err
}

// loadConfig loads configuration from environment variables
func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv fills every field from its env tag, falling back to the default tag.
// A field without a default tag is required.
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		value, ok := lookup(envTag)
		if !ok || value == "" {
			def, hasDefault := field.Tag.Lookup("default")
			if !hasDefault {
				return fmt.Errorf("env variable %s is required but not set", envTag)
			}
			value = def
		}

		if err := setField(v.Field(i), value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envTag, err)
		}
	}

	return nil
}

func setField(f reflect.Value, value string) error {
	if f.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		f.SetInt(n)
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

// SyncEnabled reports whether the status sync job has credentials
func (c *Config) SyncEnabled() bool {
	return c.SyncUsername != "" && c.SyncPassword != ""
}

// IsAdmin reports whether username is listed in AdminUsernames
func (c *Config) IsAdmin(username string) bool {
	username = strings.TrimSpace(username)
	if username == "" {
		return false
	}
	for _, admin := range strings.Split(c.AdminUsernames, ",") {
		if strings.EqualFold(strings.TrimSpace(admin), username) {
			return true
		}
	}
	return false
}

// String returns the configuration as a string
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := fmt.Sprint(v.Field(i).Interface())

		// Mask sensitive fields
		value = maskSensitiveField(field.Name, value)
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func maskSensitiveField(fieldName, value string) string {
	sensitiveFields := []string{"token", "dsn", "secret", "password"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
