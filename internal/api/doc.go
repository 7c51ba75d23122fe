// Package api hosts the ops HTTP server that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the orchestrator phase and remaining work.
package api
