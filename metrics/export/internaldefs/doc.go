// Package internaldefs describes how the client's metrics are exported: the
// metric families, their label values and the latency bucket bounds. Both
// exporters read it so Prometheus and OTel expose the same series.
package internaldefs
