package services

import "fmt"

// ConfigurationError reports a provider that cannot be used as configured, typically because its
// credential is missing. It is fatal at startup.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Provider, e.Reason)
}
