package subwatch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/deferred"
	"github.com/arloliu/subwatch/types"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig.
const EnvPrefix = "SUBWATCH_"

// Config configures an Engine.
//
// Every field can be set from YAML (LoadConfig) and overridden from the environment
// with the SUBWATCH_ prefix, for example SUBWATCH_WORKERS_SIZE=8.
type Config struct {
	// SupportedChannelTypes lists the channel type codes this deployment dispatches
	// (rest-hook, websocket, email, sms, message). Subscriptions on other channels
	// are ignored.
	SupportedChannelTypes []string `yaml:"supportedChannelTypes" env:"SUPPORTED_CHANNEL_TYPES"`

	// ResourceTypes is the catalog criteria may reference.
	// Defaults to criteria.DefaultResourceTypes.
	ResourceTypes []string `yaml:"resourceTypes" env:"RESOURCE_TYPES"`

	// Workers sizes the pool running post-commit activation work.
	Workers WorkerConfig `yaml:"workers" envPrefix:"WORKERS_"`

	// Activation tunes the activation state machine.
	Activation ActivationConfig `yaml:"activation" envPrefix:"ACTIVATION_"`

	// OperationTimeout bounds a single deferred activation task.
	OperationTimeout time.Duration `yaml:"operationTimeout" env:"OPERATION_TIMEOUT"`

	// ShutdownTimeout bounds how long Stop waits for queued activation work.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

// WorkerConfig sizes the activation worker pool.
type WorkerConfig struct {
	// Size is the number of worker goroutines.
	Size int `yaml:"size" env:"SIZE"`

	// QueueSize bounds pending tasks. A full queue drops the task with ErrQueueFull.
	QueueSize int `yaml:"queueSize" env:"QUEUE_SIZE"`
}

// ActivationConfig tunes activation.
type ActivationConfig struct {
	// SynchronousWaitForTests makes the committing goroutine wait for deferred
	// activation to finish. Never enable it in production: a commit hook that waits on
	// the pool can deadlock once the pool is saturated.
	SynchronousWaitForTests bool `yaml:"synchronousWaitForTests" env:"SYNCHRONOUS_WAIT_FOR_TESTS"`

	// SyncWaitTimeout bounds the synchronous wait.
	SyncWaitTimeout time.Duration `yaml:"syncWaitTimeout" env:"SYNC_WAIT_TIMEOUT"`

	// MaxConflictRetries bounds re-reads after a stale-version write-back.
	MaxConflictRetries int `yaml:"maxConflictRetries" env:"MAX_CONFLICT_RETRIES"`

	// RetryBackoff is the base delay between conflict retries.
	RetryBackoff time.Duration `yaml:"retryBackoff" env:"RETRY_BACKOFF"`
}

// DefaultConfig returns the production defaults.
//
// Returns:
//   - Config: Configuration with production defaults
func DefaultConfig() Config {
	return Config{
		SupportedChannelTypes: []string{types.ChannelRestHook.String(), types.ChannelWebsocket.String()},
		ResourceTypes:         append([]string(nil), criteria.DefaultResourceTypes...),
		Workers: WorkerConfig{
			Size:      4,
			QueueSize: 256,
		},
		Activation: ActivationConfig{
			SyncWaitTimeout:    deferred.DefaultSyncWaitTimeout,
			MaxConflictRetries: 3,
			RetryBackoff:       10 * time.Millisecond,
		},
		OperationTimeout: 10 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// MaxConflictRetries of zero is kept: it disables retrying.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if len(cfg.SupportedChannelTypes) == 0 {
		cfg.SupportedChannelTypes = defaults.SupportedChannelTypes
	}
	if len(cfg.ResourceTypes) == 0 {
		cfg.ResourceTypes = defaults.ResourceTypes
	}
	if cfg.Workers.Size == 0 {
		cfg.Workers.Size = defaults.Workers.Size
	}
	if cfg.Workers.QueueSize == 0 {
		cfg.Workers.QueueSize = defaults.Workers.QueueSize
	}
	if cfg.Activation.SyncWaitTimeout == 0 {
		cfg.Activation.SyncWaitTimeout = defaults.Activation.SyncWaitTimeout
	}
	if cfg.Activation.RetryBackoff == 0 {
		cfg.Activation.RetryBackoff = defaults.Activation.RetryBackoff
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// Validate checks configuration constraints.
//
// Rules:
//   - every supported channel type code is known
//   - the resource catalog contains "Subscription"
//   - Workers.Size > 0 and Workers.QueueSize > 0
//   - MaxConflictRetries >= 0, durations >= 0
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	var errs []error

	if len(cfg.SupportedChannelTypes) == 0 {
		errs = append(errs, errors.New("at least one supported channel type is required"))
	}
	for _, code := range cfg.SupportedChannelTypes {
		if types.ParseChannelType(code) == types.ChannelUnknown {
			errs = append(errs, fmt.Errorf("unknown channel type %q", code))
		}
	}

	if !criteria.NewCatalog(cfg.ResourceTypes...).Contains(types.SubscriptionResourceType) {
		errs = append(errs, fmt.Errorf("resource types must include %q", types.SubscriptionResourceType))
	}

	if cfg.Workers.Size <= 0 {
		errs = append(errs, fmt.Errorf("Workers.Size must be > 0, got %d", cfg.Workers.Size))
	}
	if cfg.Workers.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("Workers.QueueSize must be > 0, got %d", cfg.Workers.QueueSize))
	}

	if cfg.Activation.MaxConflictRetries < 0 {
		errs = append(errs, fmt.Errorf("Activation.MaxConflictRetries must be >= 0, got %d", cfg.Activation.MaxConflictRetries))
	}
	if cfg.Activation.SyncWaitTimeout < 0 || cfg.Activation.RetryBackoff < 0 {
		errs = append(errs, errors.New("activation durations must not be negative"))
	}
	if cfg.OperationTimeout < 0 || cfg.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are legal but risky.
//
// This is called after Validate() in NewEngine() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Activation.SynchronousWaitForTests {
		logger.Warn(
			"synchronous activation wait is enabled; commits block on the worker pool",
			"timeout", cfg.Activation.SyncWaitTimeout,
		)
	}

	if cfg.Workers.QueueSize < cfg.Workers.Size {
		logger.Warn(
			"worker queue is smaller than the pool, bursts will drop activation work",
			"workers", cfg.Workers.Size,
			"queueSize", cfg.Workers.QueueSize,
		)
	}

	if cfg.OperationTimeout > cfg.ShutdownTimeout {
		logger.Warn(
			"OperationTimeout exceeds ShutdownTimeout, Stop may abandon running activations",
			"operationTimeout", cfg.OperationTimeout,
			"shutdownTimeout", cfg.ShutdownTimeout,
		)
	}
}

// TestConfig returns a configuration for deterministic tests.
//
// Deferred activation is awaited on commit and retries back off quickly.
//
// Returns:
//   - Config: Configuration for tests
//
// Example:
//
//	cfg := subwatch.TestConfig()
//	engine, err := subwatch.NewEngine(cfg, store)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.SupportedChannelTypes = []string{types.ChannelRestHook.String()}
	cfg.Workers.Size = 2
	cfg.Workers.QueueSize = 16
	cfg.Activation.SynchronousWaitForTests = true
	cfg.Activation.SyncWaitTimeout = 5 * time.Second
	cfg.Activation.RetryBackoff = time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file and applies environment overrides.
//
// An empty path skips the file and starts from defaults. Environment variables use the
// SUBWATCH_ prefix; list values are comma separated.
//
// Parameters:
//   - path: Path to the YAML configuration file, or ""
//
// Returns:
//   - Config: Loaded configuration with defaults applied
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg *Config) channelSet() types.ChannelSet {
	channels := make([]types.ChannelType, 0, len(cfg.SupportedChannelTypes))
	for _, code := range cfg.SupportedChannelTypes {
		channels = append(channels, types.ParseChannelType(code))
	}

	return types.NewChannelSet(channels...)
}
