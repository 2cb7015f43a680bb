package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config field path (e.g., "swarm.max_parallel")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// maxSessionKeyLength caps the registry key length; beyond this the key is
// the whole identifier anyway.
const maxSessionKeyLength = 64

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRegistry()...)
	errors = append(errors, c.validateSwarm()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateRegistry() []ValidationError {
	var errors []ValidationError

	if c.Registry.SessionKeyLength < 1 || c.Registry.SessionKeyLength > maxSessionKeyLength {
		errors = append(errors, ValidationError{
			Field:   "registry.session_key_length",
			Value:   c.Registry.SessionKeyLength,
			Message: fmt.Sprintf("must be between 1 and %d", maxSessionKeyLength),
		})
	}

	return errors
}

func (c *Config) validateSwarm() []ValidationError {
	var errors []ValidationError

	if c.Swarm.MaxRecords < 1 {
		errors = append(errors, ValidationError{
			Field:   "swarm.max_records",
			Value:   c.Swarm.MaxRecords,
			Message: "must be at least 1",
		})
	}
	if c.Swarm.MaxParallel < 1 {
		errors = append(errors, ValidationError{
			Field:   "swarm.max_parallel",
			Value:   c.Swarm.MaxParallel,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	if c.Worker.BaseURL != "" {
		u, err := url.Parse(c.Worker.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "worker.base_url",
				Value:   c.Worker.BaseURL,
				Message: "must be an http or https URL",
			})
		}
	}
	if c.Worker.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.timeout_seconds",
			Value:   c.Worker.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
