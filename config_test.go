package subwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/internal/logging"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, []string{"rest-hook", "websocket"}, cfg.SupportedChannelTypes)
	require.Equal(t, criteria.DefaultResourceTypes, cfg.ResourceTypes)
	require.Equal(t, 4, cfg.Workers.Size)
	require.Equal(t, 256, cfg.Workers.QueueSize)
	require.False(t, cfg.Activation.SynchronousWaitForTests)
	require.Equal(t, 5*time.Second, cfg.Activation.SyncWaitTimeout)
	require.Equal(t, 3, cfg.Activation.MaxConflictRetries)
	require.Equal(t, 10*time.Millisecond, cfg.Activation.RetryBackoff)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, DefaultConfig().SupportedChannelTypes, cfg.SupportedChannelTypes)
		require.Equal(t, 4, cfg.Workers.Size)
		require.Equal(t, 256, cfg.Workers.QueueSize)
		require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
		// Zero retries is a valid setting and is kept.
		require.Equal(t, 0, cfg.Activation.MaxConflictRetries)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			SupportedChannelTypes: []string{"email"},
			ResourceTypes:         []string{"Subscription", "Patient"},
			Workers:               WorkerConfig{Size: 1, QueueSize: 2},
			Activation: ActivationConfig{
				SyncWaitTimeout:    time.Second,
				MaxConflictRetries: 7,
				RetryBackoff:       time.Second,
			},
			OperationTimeout: time.Minute,
			ShutdownTimeout:  time.Minute,
		}
		SetDefaults(&cfg)

		require.Equal(t, []string{"email"}, cfg.SupportedChannelTypes)
		require.Equal(t, []string{"Subscription", "Patient"}, cfg.ResourceTypes)
		require.Equal(t, 1, cfg.Workers.Size)
		require.Equal(t, 2, cfg.Workers.QueueSize)
		require.Equal(t, 7, cfg.Activation.MaxConflictRetries)
		require.Equal(t, time.Minute, cfg.ShutdownTimeout)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown channel", func(c *Config) { c.SupportedChannelTypes = []string{"carrier-pigeon"} }},
		{"no channels", func(c *Config) { c.SupportedChannelTypes = nil }},
		{"catalog without Subscription", func(c *Config) { c.ResourceTypes = []string{"Patient"} }},
		{"zero workers", func(c *Config) { c.Workers.Size = 0 }},
		{"zero queue", func(c *Config) { c.Workers.QueueSize = 0 }},
		{"negative retries", func(c *Config) { c.Activation.MaxConflictRetries = -1 }},
		{"negative timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := TestConfig()
	cfg.Workers.QueueSize = 1
	cfg.OperationTimeout = time.Hour

	require.NotPanics(t, func() {
		cfg.ValidateWithWarnings(logging.NewTest(t))
	})
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	require.True(t, cfg.Activation.SynchronousWaitForTests)
	require.Equal(t, []string{"rest-hook"}, cfg.SupportedChannelTypes)
	require.NoError(t, cfg.Validate())
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
supportedChannelTypes: [rest-hook, email]
workers:
  size: 8
  queueSize: 64
activation:
  syncWaitTimeout: 2s
  maxConflictRetries: 5
  retryBackoff: 20ms
operationTimeout: 15s
shutdownTimeout: 30s
`

	var cfg Config
	err := yaml.Unmarshal([]byte(yamlConfig), &cfg)
	require.NoError(t, err)

	require.Equal(t, []string{"rest-hook", "email"}, cfg.SupportedChannelTypes)
	require.Equal(t, 8, cfg.Workers.Size)
	require.Equal(t, 64, cfg.Workers.QueueSize)
	require.Equal(t, 2*time.Second, cfg.Activation.SyncWaitTimeout)
	require.Equal(t, 5, cfg.Activation.MaxConflictRetries)
	require.Equal(t, 20*time.Millisecond, cfg.Activation.RetryBackoff)
	require.Equal(t, 15*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers:\n  size: 3\nshutdownTimeout: 20s\n"), 0o600))

	t.Setenv("SUBWATCH_WORKERS_SIZE", "6")
	t.Setenv("SUBWATCH_SUPPORTED_CHANNEL_TYPES", "websocket,sms")
	t.Setenv("SUBWATCH_ACTIVATION_RETRY_BACKOFF", "50ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// Environment overrides the file, the file overrides defaults.
	require.Equal(t, 6, cfg.Workers.Size)
	require.Equal(t, []string{"websocket", "sms"}, cfg.SupportedChannelTypes)
	require.Equal(t, 50*time.Millisecond, cfg.Activation.RetryBackoff)
	require.Equal(t, 20*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 256, cfg.Workers.QueueSize)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("supportedChannelTypes: [fax]\n"), 0o600))

		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("no file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, DefaultConfig().Workers, cfg.Workers)
	})
}
