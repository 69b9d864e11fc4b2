// Package prometheus renders adminauth engine metrics in Prometheus text
// exposition format.
//
// [PrometheusExporter.Handler] is mounted by the caller (adminauthd serves it
// at /metrics); nothing is registered globally. Counters are named
// adminauth_*_total and the single histogram is
// adminauth_validate_latency_seconds.
package prometheus
