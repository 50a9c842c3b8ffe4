// Package prometheus renders goFeedback client metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps a [goFeedback.Client] and exposes an
// [http.Handler]. Counters are named gofeedback_*_total; the latency
// histograms are gofeedback_validate_latency_seconds and
// gofeedback_submit_latency_seconds.
//
// Nothing is registered globally; callers mount the Handler.
package prometheus
