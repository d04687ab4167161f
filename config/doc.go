// Package config loads and validates the load balancer configuration from
// a YAML file and environment variables via viper. Validation covers the
// listen address, balancer sizing, health check and circuit breaker timing,
// rate limits, and the static backend list.
package config
