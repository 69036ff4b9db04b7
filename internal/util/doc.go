// Package util provides shared validation helpers for configuration
// values such as ports, endpoints, and durations.
package util
