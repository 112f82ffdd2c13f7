package ports

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable indicates that the backing store could not be
// reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// StoreError represents a failure of a persistence backend.
type StoreError struct {
	// Store names the backend, e.g. "postgres" or "memory".
	Store string

	// Operation is the store operation that failed.
	Operation string

	// Key is the record key involved, if any.
	Key string

	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store error: store=%s, operation=%s, err=%v", e.Store, e.Operation, e.Err)
	}
	return fmt.Sprintf("store error: store=%s, operation=%s, key=%s, err=%v", e.Store, e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(store, operation, key string, err error) *StoreError {
	return &StoreError{
		Store:     store,
		Operation: operation,
		Key:       key,
		Err:       err,
	}
}

// ConfigError reports an unreadable or invalid configuration value.
type ConfigError struct {
	// ConfigKey is the file path or the field namespace that failed.
	ConfigKey string

	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}
