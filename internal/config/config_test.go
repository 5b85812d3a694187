package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGatewayURL = "http://localhost:5000"

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "CIMUT_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "CIMUT_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "CIMUT_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "CIMUT_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "CIMUT_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "CIMUT_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "parses negative int", key: "CIMUT_TEST_INT_NEG", setVal: strPtr("-1"), fallback: 0, want: -1},
		{name: "parses zero", key: "CIMUT_TEST_INT_ZERO", setVal: strPtr("0"), fallback: 99, want: 0},
		{name: "errors on non-numeric", key: "CIMUT_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
		{name: "errors on float", key: "CIMUT_TEST_INT_FLOAT", setVal: strPtr("3.14"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback float64
		want     float64
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "CIMUT_TEST_FLOAT_UNSET", setVal: nil, fallback: 2.5, want: 2.5},
		{name: "parses integer form", key: "CIMUT_TEST_FLOAT_INT", setVal: strPtr("10"), fallback: 0, want: 10},
		{name: "parses fraction", key: "CIMUT_TEST_FLOAT_FRAC", setVal: strPtr("0.5"), fallback: 0, want: 0.5},
		{name: "errors on invalid", key: "CIMUT_TEST_FLOAT_INV", setVal: strPtr("fast"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvFloat(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "CIMUT_TEST_DUR_UNSET", setVal: nil, fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses seconds", key: "CIMUT_TEST_DUR_SEC", setVal: strPtr("30s"), fallback: 0, want: 30 * time.Second},
		{name: "parses composite", key: "CIMUT_TEST_DUR_COMP", setVal: strPtr("1h30m"), fallback: 0, want: 90 * time.Minute},
		{name: "parses zero", key: "CIMUT_TEST_DUR_ZERO", setVal: strPtr("0s"), fallback: 5 * time.Second, want: 0},
		{name: "errors on invalid", key: "CIMUT_TEST_DUR_INV", setVal: strPtr("notaduration"), fallback: 0, wantErr: true},
		{name: "errors on bare number", key: "CIMUT_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvList(t *testing.T) {
	tests := []struct {
		name   string
		setVal *string
		want   []string
	}{
		{name: "returns fallback when unset", setVal: nil, want: []string{"fallback"}},
		{name: "splits and trims", setVal: strPtr(" http://a , http://b "), want: []string{"http://a", "http://b"}},
		{name: "drops empty entries", setVal: strPtr("http://a,,"), want: []string{"http://a"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv("CIMUT_TEST_LIST", *tc.setVal)
			}

			assert.Equal(t, tc.want, getEnvList("CIMUT_TEST_LIST", []string{"fallback"}))
		})
	}
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

func TestLoad_MissingGatewayURL(t *testing.T) {
	// All defaults apply; gateway URL is empty => must fail.
	t.Setenv("CIMUT_GATEWAY_URL", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "CIMUT_GATEWAY_URL")
}

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		errMsg string
	}{
		// Gateway
		{name: "GATEWAY_URL no scheme", envKey: "CIMUT_GATEWAY_URL", envVal: "localhost:5000", errMsg: "CIMUT_GATEWAY_URL"},
		{name: "GATEWAY_URL ftp scheme", envKey: "CIMUT_GATEWAY_URL", envVal: "ftp://gateway", errMsg: "CIMUT_GATEWAY_URL"},
		{name: "GATEWAY_URL no host", envKey: "CIMUT_GATEWAY_URL", envVal: "http://", errMsg: "CIMUT_GATEWAY_URL"},
		{name: "GATEWAY_TIMEOUT invalid", envKey: "CIMUT_GATEWAY_TIMEOUT", envVal: "soon", errMsg: "CIMUT_GATEWAY_TIMEOUT"},
		{name: "GATEWAY_TIMEOUT negative", envKey: "CIMUT_GATEWAY_TIMEOUT", envVal: "-1s", errMsg: "CIMUT_GATEWAY_TIMEOUT"},

		// Server timeouts
		{name: "SERVER_READ_TIMEOUT invalid", envKey: "CIMUT_SERVER_READ_TIMEOUT", envVal: "notduration", errMsg: "CIMUT_SERVER_READ_TIMEOUT"},
		{name: "SERVER_WRITE_TIMEOUT invalid", envKey: "CIMUT_SERVER_WRITE_TIMEOUT", envVal: "notduration", errMsg: "CIMUT_SERVER_WRITE_TIMEOUT"},
		{name: "SERVER_READ_TIMEOUT zero", envKey: "CIMUT_SERVER_READ_TIMEOUT", envVal: "0s", errMsg: "CIMUT_SERVER_READ_TIMEOUT"},
		{name: "SERVER_WRITE_TIMEOUT zero", envKey: "CIMUT_SERVER_WRITE_TIMEOUT", envVal: "0s", errMsg: "CIMUT_SERVER_WRITE_TIMEOUT"},

		// Session
		{name: "SESSION_TTL invalid", envKey: "CIMUT_SESSION_TTL", envVal: "forever", errMsg: "CIMUT_SESSION_TTL"},
		{name: "SESSION_TTL negative", envKey: "CIMUT_SESSION_TTL", envVal: "-1m", errMsg: "CIMUT_SESSION_TTL"},

		// Redis DB
		{name: "REDIS_DB not a number", envKey: "CIMUT_REDIS_DB", envVal: "abc", errMsg: "CIMUT_REDIS_DB"},
		{name: "REDIS_DB negative", envKey: "CIMUT_REDIS_DB", envVal: "-1", errMsg: "CIMUT_REDIS_DB"},

		// Rate limits
		{name: "RATE_LIMIT_RPS zero", envKey: "CIMUT_RATE_LIMIT_RPS", envVal: "0", errMsg: "CIMUT_RATE_LIMIT_RPS"},
		{name: "RATE_LIMIT_RPS not a number", envKey: "CIMUT_RATE_LIMIT_RPS", envVal: "lots", errMsg: "CIMUT_RATE_LIMIT_RPS"},
		{name: "RATE_LIMIT_BURST zero", envKey: "CIMUT_RATE_LIMIT_BURST", envVal: "0", errMsg: "CIMUT_RATE_LIMIT_BURST"},
		{name: "SESSION_RATE_LIMIT_RPS negative", envKey: "CIMUT_SESSION_RATE_LIMIT_RPS", envVal: "-2", errMsg: "CIMUT_SESSION_RATE_LIMIT_RPS"},
		{name: "SESSION_RATE_LIMIT_BURST zero", envKey: "CIMUT_SESSION_RATE_LIMIT_BURST", envVal: "0", errMsg: "CIMUT_SESSION_RATE_LIMIT_BURST"},

		// Logging
		{name: "LOG_FORMAT unknown", envKey: "CIMUT_LOG_FORMAT", envVal: "xml", errMsg: "CIMUT_LOG_FORMAT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Always set the gateway URL so failures are from the var under test.
			t.Setenv("CIMUT_GATEWAY_URL", testGatewayURL)
			t.Setenv(tc.envKey, tc.envVal)

			cfg, err := Load()
			require.Error(t, err, "expected error for %s=%q", tc.envKey, tc.envVal)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	// Only the required gateway URL is set; everything else uses defaults.
	t.Setenv("CIMUT_GATEWAY_URL", testGatewayURL+"/")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Gateway defaults; trailing slash is trimmed.
	assert.Equal(t, testGatewayURL, cfg.Gateway.URL)
	assert.Zero(t, cfg.Gateway.Timeout)

	// Server defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)

	// Session defaults.
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)

	// Redis defaults to the in-process bus.
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	// Rate limit defaults.
	assert.InDelta(t, 20.0, cfg.RateLimit.RPS, 1e-9)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.InDelta(t, 5.0, cfg.RateLimit.SessionRPS, 1e-9)
	assert.Equal(t, 10, cfg.RateLimit.SessionBurst)

	// Log defaults.
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		// Gateway
		"CIMUT_GATEWAY_URL":     "https://gateway.lab.internal:8443",
		"CIMUT_GATEWAY_TIMEOUT": "90s",
		// Server
		"CIMUT_SERVER_ADDR":          ":9090",
		"CIMUT_SERVER_READ_TIMEOUT":  "5s",
		"CIMUT_SERVER_WRITE_TIMEOUT": "2m",
		"CIMUT_CORS_ORIGINS":         "https://panel.lab, https://ops.lab",
		// Session
		"CIMUT_SESSION_TTL": "0s",
		// Redis
		"CIMUT_REDIS_ADDR":     "redis.lab:6380",
		"CIMUT_REDIS_PASSWORD": "redis-pass",
		"CIMUT_REDIS_DB":       "3",
		// Rate limits
		"CIMUT_RATE_LIMIT_RPS":           "2.5",
		"CIMUT_RATE_LIMIT_BURST":         "5",
		"CIMUT_SESSION_RATE_LIMIT_RPS":   "1",
		"CIMUT_SESSION_RATE_LIMIT_BURST": "2",
		// Logging
		"CIMUT_LOG_LEVEL":  "debug",
		"CIMUT_LOG_FORMAT": "text",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://gateway.lab.internal:8443", cfg.Gateway.URL)
	assert.Equal(t, 90*time.Second, cfg.Gateway.Timeout)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://panel.lab", "https://ops.lab"}, cfg.Server.CORSOrigins)

	assert.Zero(t, cfg.Session.TTL)

	assert.Equal(t, "redis.lab:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)

	assert.InDelta(t, 2.5, cfg.RateLimit.RPS, 1e-9)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.InDelta(t, 1.0, cfg.RateLimit.SessionRPS, 1e-9)
	assert.Equal(t, 2, cfg.RateLimit.SessionBurst)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

// ---------------------------------------------------------------------------
// validate() direct tests
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	// validBase returns a Config that passes validation.
	validBase := func() *Config {
		return &Config{
			Gateway: GatewayConfig{URL: testGatewayURL},
			Server: ServerConfig{
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			Session:   SessionConfig{TTL: time.Hour},
			RateLimit: RateLimitConfig{RPS: 1, Burst: 1, SessionRPS: 1, SessionBurst: 1},
			Log:       LogConfig{Level: "info", Format: "json"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validBase().validate())
	})

	t.Run("https gateway passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Gateway.URL = "https://gateway.example.com/prefix"
		assert.NoError(t, c.validate())
	})

	t.Run("empty gateway URL fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Gateway.URL = ""
		assert.ErrorContains(t, c.validate(), "CIMUT_GATEWAY_URL is required")
	})

	t.Run("zero gateway timeout passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Gateway.Timeout = 0
		assert.NoError(t, c.validate())
	})

	t.Run("zero session TTL passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Session.TTL = 0
		assert.NoError(t, c.validate())
	})

	t.Run("text log format passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Log.Format = "text"
		assert.NoError(t, c.validate())
	})

	t.Run("zero write timeout fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Server.WriteTimeout = 0
		assert.ErrorContains(t, c.validate(), "CIMUT_SERVER_WRITE_TIMEOUT")
	})
}

func strPtr(s string) *string {
	return &s
}
