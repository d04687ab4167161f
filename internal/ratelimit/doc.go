// Package ratelimit provides per-client token-bucket rate limiting as HTTP
// middleware, built on golang.org/x/time/rate.
package ratelimit
