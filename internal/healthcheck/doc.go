// Package healthcheck implements the HTTP health probe for backend servers.
// It supplies the balancer's pluggable Prober collaborator: a GET against
// the server's /health endpoint with a bounded client timeout.
package healthcheck
