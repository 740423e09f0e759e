package engine

import (
	"time"

	"github.com/pitabwire/orchest/internal/config"
)

// Options control the state machine's failure handling and persistence.
type Options struct {
	// EnablePersistence saves an instance snapshot after every mutation.
	EnablePersistence bool

	// EnableRetries re-attempts a failed phase up to MaxRetries times
	// before failing the workflow.
	EnableRetries bool
	MaxRetries    int
	RetryDelay    time.Duration

	// RetryBackoff selects the delay strategy between attempts:
	// "constant" or "exponential".
	RetryBackoff string

	// EnableRollback resets a failed phase's completed tasks to pending
	// before each retry attempt.
	EnableRollback bool

	// DefaultTimeout bounds one phase execution attempt.
	DefaultTimeout time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		EnablePersistence: true,
		EnableRetries:     true,
		MaxRetries:        3,
		RetryDelay:        time.Second,
		RetryBackoff:      "constant",
		DefaultTimeout:    5 * time.Minute,
	}
}

// OptionsFromConfig maps the engine config section onto Options.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		EnablePersistence: cfg.EnablePersistence,
		EnableRetries:     cfg.EnableRetries,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		RetryBackoff:      cfg.RetryBackoff,
		EnableRollback:    cfg.EnableRollback,
		DefaultTimeout:    cfg.DefaultTimeout,
	}
}
