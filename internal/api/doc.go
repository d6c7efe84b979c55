// Package api hosts the read-only HTTP query interface over stored business
// records. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/records?name=&postal_code=&limit= to search or list records.
//   - GET /v1/records/count for the total row count.
package api
