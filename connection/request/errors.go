package request

import "fmt"

// ConfigError means the RequestSpec could not be built
type ConfigError struct {
	Field    string
	Reason   string
	InnerErr error
}

func (e *ConfigError) Error() string {
	if e.InnerErr != nil {
		return fmt.Sprintf("invalid %s: %s: %s", e.Field, e.Reason, e.InnerErr)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.InnerErr }
