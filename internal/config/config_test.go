package config

import (
	"testing"
	"time"

	"github.com/dcmarble/stonesite/internal/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials() {
	viper.Set("emailjs.service_id", "service_abc")
	viper.Set("emailjs.template_id", "template_xyz")
	viper.Set("emailjs.public_key", "pk_123456")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T)
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			setup: func(t *testing.T) {
				setCredentials()
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "production", cfg.Server.Environment)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, DefaultEmailJSEndpoint, cfg.EmailJS.Endpoint)
				assert.Equal(t, 15*time.Second, cfg.EmailJS.Timeout)
				assert.True(t, cfg.RateLimit.Enabled)
				assert.Equal(t, 10, cfg.RateLimit.RequestsPerMinute)
				assert.Equal(t, 3, cfg.RateLimit.Burst)
				assert.False(t, cfg.Gallery.Watch)
				assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
				assert.Equal(t, 10000, cfg.Session.MaxVisitors)
				assert.Empty(t, cfg.Server.TrustedProxies)
				assert.False(t, cfg.Server.SecureCookies)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, "text", cfg.Log.Format)
			},
		},
		{
			name: "explicit values",
			setup: func(t *testing.T) {
				setCredentials()
				viper.Set("server.port", 3000)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("server.environment", "development")
				viper.Set("server.allowed_origins", []string{"https://dcmarbleandgranite.com"})
				viper.Set("emailjs.timeout", "5s")
				viper.Set("gallery.dir", "public/images/gallery")
				viper.Set("rate_limit.enabled", false)
				viper.Set("log.format", "json")
				viper.Set("server.trusted_proxies", []string{"10.0.0.0/8", "192.0.2.10"})
				viper.Set("server.secure_cookies", true)
				viper.Set("session.max_visitors", 0)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
				assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.Server.TrustedProxies)
				assert.True(t, cfg.Server.SecureCookies)
				assert.Equal(t, 0, cfg.Session.MaxVisitors, "explicit 0 disables the cap")
				assert.True(t, cfg.IsDevelopment())
				assert.Equal(t, []string{"https://dcmarbleandgranite.com"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, 5*time.Second, cfg.EmailJS.Timeout)
				assert.True(t, cfg.Gallery.Watch)
				assert.False(t, cfg.RateLimit.Enabled)
				assert.Equal(t, "json", cfg.Log.Format)
			},
		},
		{
			name: "credentials from legacy environment",
			setup: func(t *testing.T) {
				t.Setenv("NEXT_PUBLIC_EMAILJS_SERVICE_ID", "svc_env")
				t.Setenv("NEXT_PUBLIC_EMAILJS_TEMPLATE_ID", "tpl_env")
				t.Setenv("NEXT_PUBLIC_EMAILJS_PUBLIC_KEY", "pk_env")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "svc_env", cfg.EmailJS.ServiceID)
				assert.Equal(t, "tpl_env", cfg.EmailJS.TemplateID)
				assert.Equal(t, "pk_env", cfg.EmailJS.PublicKey)
			},
		},
		{
			name: "prefixed environment wins over legacy",
			setup: func(t *testing.T) {
				viper.Set("emailjs.template_id", "template_xyz")
				viper.Set("emailjs.public_key", "pk_123456")
				t.Setenv("STONESITE_EMAILJS_SERVICE_ID", "svc_prefixed")
				t.Setenv("EMAILJS_SERVICE_ID", "svc_plain")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "svc_prefixed", cfg.EmailJS.ServiceID)
			},
		},
		{
			name:        "missing credentials",
			setup:       func(t *testing.T) {},
			expectError: true,
		},
		{
			name: "invalid port",
			setup: func(t *testing.T) {
				setCredentials()
				viper.Set("server.port", 70000)
			},
			expectError: true,
		},
		{
			name: "undecodable port",
			setup: func(t *testing.T) {
				setCredentials()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "gallery path traversal",
			setup: func(t *testing.T) {
				setCredentials()
				viper.Set("gallery.dir", "../../etc")
			},
			expectError: true,
		},
		{
			name: "unknown log level",
			setup: func(t *testing.T) {
				setCredentials()
				viper.Set("log.level", "chatty")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setup(t)

			cfg, err := Load()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsConfigError(err), "expected config error, got %v", err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadMissingCredentialsNamesAll(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("emailjs.service_id", "svc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emailjs.template_id")
	assert.Contains(t, err.Error(), "emailjs.public_key")
	assert.NotContains(t, err.Error(), "emailjs.service_id")
}

func TestValidateServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"valid", ServerConfig{Port: 8080, Host: "localhost", Environment: "production"}, false},
		{"system port", ServerConfig{Port: 0, Host: "127.0.0.1", Environment: "development"}, false},
		{"negative port", ServerConfig{Port: -1, Environment: "production"}, true},
		{"shell metachar host", ServerConfig{Port: 80, Host: "localhost;rm", Environment: "production"}, true},
		{"unknown environment", ServerConfig{Port: 80, Host: "localhost", Environment: "staging"}, true},
		{"trusted proxies", ServerConfig{Port: 80, Environment: "production", TrustedProxies: []string{"10.0.0.0/8", "::1"}}, false},
		{"bad trusted proxy", ServerConfig{Port: 80, Environment: "production", TrustedProxies: []string{"proxy.internal"}}, true},
		{"bad trusted range", ServerConfig{Port: 80, Environment: "production", TrustedProxies: []string{"10.0.0.0/33"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServerConfig(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigStringRedactsCredentials(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080, Environment: "production"},
		EmailJS: EmailJSConfig{
			Endpoint:   DefaultEmailJSEndpoint,
			ServiceID:  "service_secret_value",
			TemplateID: "template_secret_value",
			PublicKey:  "public_secret_value",
		},
	}

	out := cfg.String()
	assert.NotContains(t, out, "service_secret_value")
	assert.NotContains(t, out, "template_secret_value")
	assert.NotContains(t, out, "public_secret_value")
	assert.Contains(t, out, "localhost:8080")
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.1.2.3/8", " 192.0.2.10 ", "::ffff:198.51.100.1", "2001:db8::/32"})
	require.NoError(t, err)

	got := make([]string, len(prefixes))
	for i, p := range prefixes {
		got[i] = p.String()
	}
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10/32", "198.51.100.1/32", "2001:db8::/32"}, got)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestValidateSessionConfig(t *testing.T) {
	assert.NoError(t, validateSessionConfig(&SessionConfig{MaxVisitors: 0}))
	assert.NoError(t, validateSessionConfig(&SessionConfig{MaxVisitors: 50}))
	assert.Error(t, validateSessionConfig(&SessionConfig{MaxVisitors: -1}))
}
