package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "SEEDER"

// ErrMissingSetting is wrapped by Validate for every required setting that
// has no value.
var ErrMissingSetting = errors.New("missing required setting")

// Config is the root configuration for the catalog seeder.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	BootstrapOnStart bool          `mapstructure:"bootstrap_on_start"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	LogFile      string `mapstructure:"log_file"`
}

type BootstrapConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Seed     bool           `mapstructure:"seed"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

// DatabaseConfig describes the single Postgres connection used by the
// bootstrap run. Encrypt and TrustServerCertificate map onto libpq sslmode.
type DatabaseConfig struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	Name                   string        `mapstructure:"name"`
	User                   string        `mapstructure:"user"`
	Password               string        `mapstructure:"password"`
	PasswordFile           string        `mapstructure:"password_file"`
	Encrypt                bool          `mapstructure:"encrypt"`
	TrustServerCertificate bool          `mapstructure:"trust_server_certificate"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig is optional. An empty Host disables cache invalidation.
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NATSConfig is optional. An empty URL disables bootstrap events.
// Subject must fall under StreamFilter so the stream captures it.
type NATSConfig struct {
	URL          string `mapstructure:"url"`
	Stream       string `mapstructure:"stream"`
	StreamFilter string `mapstructure:"stream_filter"`
	Subject      string `mapstructure:"subject"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the SEEDER_ prefix
// (e.g. SEEDER_BOOTSTRAP_DATABASE_HOST). A password_file, when set and no
// password was given, is read and its trimmed content used as the password.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	db := &cfg.Bootstrap.Database
	if db.Password == "" && db.PasswordFile != "" {
		raw, err := os.ReadFile(db.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading password file %s: %w", db.PasswordFile, err)
		}
		db.Password = strings.TrimSpace(string(raw))
	}

	return &cfg, nil
}

// Validate reports every required database setting that is empty.
func (c *Config) Validate() error {
	db := c.Bootstrap.Database
	required := []struct {
		key   string
		value string
	}{
		{"bootstrap.database.host", db.Host},
		{"bootstrap.database.name", db.Name},
		{"bootstrap.database.user", db.User},
		{"bootstrap.database.password", db.Password},
	}

	var errs []error
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s (env %s)", ErrMissingSetting, r.key, envName(r.key)))
		}
	}
	if db.Port <= 0 || db.Port > 65535 {
		errs = append(errs, fmt.Errorf("bootstrap.database.port out of range: %d", db.Port))
	}

	if n := c.Bootstrap.NATS; n.Enabled() {
		switch {
		case n.Stream == "":
			errs = append(errs, fmt.Errorf("%w: bootstrap.nats.stream (env %s)", ErrMissingSetting, envName("bootstrap.nats.stream")))
		case strings.ContainsAny(n.Subject, "*>") || n.Subject == "":
			errs = append(errs, fmt.Errorf("bootstrap.nats.subject must be a literal subject: %q", n.Subject))
		case !SubjectMatches(n.StreamFilter, n.Subject):
			errs = append(errs, fmt.Errorf("bootstrap.nats.subject %q is not covered by stream_filter %q", n.Subject, n.StreamFilter))
		}
	}
	return errors.Join(errs...)
}

// SSLMode converts the encryption flags into a libpq sslmode value.
func (c DatabaseConfig) SSLMode() string {
	switch {
	case !c.Encrypt:
		return "disable"
	case c.TrustServerCertificate:
		return "require"
	default:
		return "verify-full"
	}
}

// DSN renders the connection URL. User and password are escaped.
func (c DatabaseConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode())
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Enabled reports whether Redis cache invalidation is configured.
func (c RedisConfig) Enabled() bool { return c.Host != "" }

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether bootstrap events are configured.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

// SubjectMatches reports whether the literal subject is matched by the NATS
// subject filter, honouring the * and > wildcards.
func SubjectMatches(filter, subject string) bool {
	if filter == "" || subject == "" {
		return false
	}
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")
	for i, tok := range ft {
		if tok == ">" {
			return i == len(ft)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(ft) == len(st)
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.bootstrap_on_start", false)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "catalog-seeder")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "text")
	v.SetDefault("telemetry.log_file", "")

	v.SetDefault("bootstrap.timeout", 5*time.Minute)
	v.SetDefault("bootstrap.seed", true)

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("bootstrap.database.host", "localhost")
	v.SetDefault("bootstrap.database.port", 5432)
	v.SetDefault("bootstrap.database.name", "ProductDb")
	v.SetDefault("bootstrap.database.user", "")
	v.SetDefault("bootstrap.database.password", "")
	v.SetDefault("bootstrap.database.password_file", "")
	v.SetDefault("bootstrap.database.encrypt", true)
	v.SetDefault("bootstrap.database.trust_server_certificate", false)
	v.SetDefault("bootstrap.database.connect_timeout", 30*time.Second)

	v.SetDefault("bootstrap.redis.host", "")
	v.SetDefault("bootstrap.redis.port", 6379)
	v.SetDefault("bootstrap.redis.password", "")
	v.SetDefault("bootstrap.redis.db", 0)
	v.SetDefault("bootstrap.redis.key_prefix", "catalog:")

	v.SetDefault("bootstrap.nats.url", "")
	v.SetDefault("bootstrap.nats.stream", "CATALOG_EVENTS")
	v.SetDefault("bootstrap.nats.stream_filter", "catalog.>")
	v.SetDefault("bootstrap.nats.subject", "catalog.bootstrap.completed")
}
