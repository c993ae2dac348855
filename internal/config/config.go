// Package config provides configuration management for stonesite using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Values come from .stonesite.yml, STONESITE_ prefixed environment
// variables and flags bound by the cmd package. The three EmailJS
// credentials are additionally read from EMAILJS_* and the legacy
// NEXT_PUBLIC_EMAILJS_* variables. Missing credentials are a load-time
// error: the server refuses to start rather than failing each submission.
package config

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/emailjs"
	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/spf13/viper"
)

// DefaultEmailJSEndpoint is the EmailJS REST send endpoint.
const DefaultEmailJSEndpoint = emailjs.DefaultEndpoint

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	EmailJS   EmailJSConfig   `mapstructure:"emailjs" yaml:"emailjs"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Gallery   GalleryConfig   `mapstructure:"gallery" yaml:"gallery"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers are believed. Empty means
	// the peer address is always the client.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`

	// SecureCookies marks the session cookie Secure even when the request
	// reached us over plain HTTP, as it does behind a TLS-terminating proxy.
	SecureCookies bool `mapstructure:"secure_cookies" yaml:"secure_cookies"`
}

// EmailJSConfig holds the remote email service settings. The credential
// fields are opaque and never validated beyond presence.
type EmailJSConfig struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceID  string        `mapstructure:"service_id" yaml:"service_id"`
	TemplateID string        `mapstructure:"template_id" yaml:"template_id"`
	PublicKey  string        `mapstructure:"public_key" yaml:"public_key"`
	PrivateKey string        `mapstructure:"private_key" yaml:"private_key"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Credentials returns the three values handed to the email service.
func (e EmailJSConfig) Credentials() contact.Credentials {
	return contact.Credentials{
		ServiceID:  e.ServiceID,
		TemplateID: e.TemplateID,
		PublicKey:  e.PublicKey,
	}
}

type SiteConfig struct {
	ContentFile string `mapstructure:"content_file" yaml:"content_file"`
}

type GalleryConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
	// MaxVisitors caps the number of live sessions. 0 disables the cap.
	MaxVisitors int `mapstructure:"max_visitors" yaml:"max_visitors"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// envAliases lists extra environment variables read for each credential,
// in priority order after the STONESITE_ prefixed name.
var envAliases = map[string][]string{
	"emailjs.service_id":  {"STONESITE_EMAILJS_SERVICE_ID", "EMAILJS_SERVICE_ID", "NEXT_PUBLIC_EMAILJS_SERVICE_ID"},
	"emailjs.template_id": {"STONESITE_EMAILJS_TEMPLATE_ID", "EMAILJS_TEMPLATE_ID", "NEXT_PUBLIC_EMAILJS_TEMPLATE_ID"},
	"emailjs.public_key":  {"STONESITE_EMAILJS_PUBLIC_KEY", "EMAILJS_PUBLIC_KEY", "NEXT_PUBLIC_EMAILJS_PUBLIC_KEY"},
	"emailjs.private_key": {"STONESITE_EMAILJS_PRIVATE_KEY", "EMAILJS_PRIVATE_KEY"},
}

// BindEnv registers the credential environment aliases with viper.
func BindEnv() error {
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Load builds a Config from the global viper instance, applies defaults
// and validates the result.
func Load() (*Config, error) {
	if err := BindEnv(); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to bind environment")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// Workaround for viper slice handling when set from env or flags
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("server.trusted_proxies") && len(config.Server.TrustedProxies) == 0 {
		config.Server.TrustedProxies = viper.GetStringSlice("server.trusted_proxies")
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = 8080
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "production"
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.EmailJS.Endpoint == "" {
		config.EmailJS.Endpoint = DefaultEmailJSEndpoint
	}
	if config.EmailJS.Timeout == 0 {
		config.EmailJS.Timeout = 15 * time.Second
	}

	if !viper.IsSet("rate_limit.enabled") {
		config.RateLimit.Enabled = true
	}
	if config.RateLimit.RequestsPerMinute == 0 {
		config.RateLimit.RequestsPerMinute = 10
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 3
	}

	if !viper.IsSet("gallery.watch") && config.Gallery.Dir != "" {
		config.Gallery.Watch = true
	}

	if config.Session.TTL == 0 {
		config.Session.TTL = 30 * time.Minute
	}
	if config.Session.MaxVisitors == 0 && !viper.IsSet("session.max_visitors") {
		config.Session.MaxVisitors = 10000
	}

	if config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	return errors.CombineErrors(
		validateServerConfig(&config.Server),
		validateEmailJSConfig(&config.EmailJS),
		validateGalleryConfig(&config.Gallery),
		validateSessionConfig(&config.Session),
		validatePathField("site.content_file", config.Site.ContentFile),
		validateLogConfig(&config.Log),
	)
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port))
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("host contains dangerous character: %q", char))
		}
	}

	switch config.Environment {
	case "development", "production":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("environment must be development or production, got %q", config.Environment))
	}

	if _, err := ParseTrustedProxies(config.TrustedProxies); err != nil {
		return err
	}

	return nil
}

// ParseTrustedProxies turns server.trusted_proxies into prefixes. A bare
// address is treated as a single-host range.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid,
					fmt.Sprintf("server.trusted_proxies: invalid range %q", entry))
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid,
				fmt.Sprintf("server.trusted_proxies: invalid address %q", entry))
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func validateEmailJSConfig(config *EmailJSConfig) error {
	var missing []string
	if config.ServiceID == "" {
		missing = append(missing, "emailjs.service_id")
	}
	if config.TemplateID == "" {
		missing = append(missing, "emailjs.template_id")
	}
	if config.PublicKey == "" {
		missing = append(missing, "emailjs.public_key")
	}
	if len(missing) > 0 {
		return errors.NewConfigError(errors.ErrCodeMissingCredential,
			"missing EmailJS credentials: "+strings.Join(missing, ", ")).
			WithContext("missing", missing)
	}

	if !strings.HasPrefix(config.Endpoint, "https://") && !strings.HasPrefix(config.Endpoint, "http://") {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("emailjs.endpoint must be an http(s) URL, got %q", config.Endpoint))
	}

	if config.Timeout < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "emailjs.timeout must not be negative")
	}

	return nil
}

func validateSessionConfig(config *SessionConfig) error {
	if config.MaxVisitors < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "session.max_visitors must not be negative")
	}
	return nil
}

func validateGalleryConfig(config *GalleryConfig) error {
	return validatePathField("gallery.dir", config.Dir)
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid log.level")
	}
	if config.Format != "text" && config.Format != "json" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("log.format must be text or json, got %q", config.Format))
	}
	return nil
}

// validatePathField validates an optional relative file path
func validatePathField(field, path string) error {
	if path == "" {
		return nil
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return errors.NewConfigError(errors.ErrCodePathTraversal,
			fmt.Sprintf("%s contains path traversal: %s", field, path))
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("%s contains dangerous character: %s", field, char))
		}
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// String renders the configuration with credentials redacted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"server=%s env=%s emailjs{endpoint=%s service_id=%s template_id=%s public_key=%s} gallery=%q rate_limit=%v/%dpm",
		c.Addr(), c.Server.Environment,
		c.EmailJS.Endpoint,
		logging.Redact(c.EmailJS.ServiceID),
		logging.Redact(c.EmailJS.TemplateID),
		logging.Redact(c.EmailJS.PublicKey),
		c.Gallery.Dir,
		c.RateLimit.Enabled, c.RateLimit.RequestsPerMinute,
	)
}
