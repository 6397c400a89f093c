// Package environment provides helpers for loading configuration from
// environment variables.
//
// Every helper reads one variable and returns either its parsed value or a
// default. Only required variables produce errors, and they return them
// instead of exiting so main stays in charge of process termination.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StringOr returns the named environment variable, or defaultValue if it is
// unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the named environment variable or an error if it is
// unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named environment variable with strconv.ParseBool.
// Returns defaultValue if the variable is unset, empty, or unparseable.
func BoolOr(name string, defaultValue bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named environment variable as a decimal integer.
// Returns defaultValue if the variable is unset, empty, or unparseable.
func IntOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named environment variable as a time.Duration
// ("30s", "10m", "1h"). Returns defaultValue if the variable is unset,
// empty, or unparseable.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
