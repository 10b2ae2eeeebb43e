// Package api exposes a read-only HTTP surface over a chain interface: health,
// network snapshot, contract resolution by name or address, and Prometheus
// metrics.
package api
