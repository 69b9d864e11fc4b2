package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/metrics/export/internaldefs"
)

// healthTimeout bounds the storage probe made on every scrape.
const healthTimeout = 2 * time.Second

type metricsSource interface {
	MetricsSnapshot() adminauth.MetricsSnapshot
	AuditDropped() uint64
}

// engineState is implemented by *adminauth.Engine. Sources without it get no
// gauges.
type engineState interface {
	AllowListSize() int
	Health(ctx context.Context) error
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates an exporter that reads from engine.
func NewPrometheusExporter(engine *adminauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates an exporter over any metrics source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves RenderContext with the text exposition content type. The
// store probe is bound to the scrape request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.RenderContext(r.Context())))
	})
}

// Render is RenderContext with a background context.
func (p *PrometheusExporter) Render() string {
	return p.RenderContext(context.Background())
}

// RenderContext returns the current metrics, or "" when metrics are disabled.
func (p *PrometheusExporter) RenderContext(ctx context.Context) string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := &textWriter{}
	w.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		w.header(def.Name, def.Help, "counter")
		w.sample(def.Name, "", snapshot.Counters[def.ID])
	}
	w.header(internaldefs.AuditDroppedName, "Audit events dropped on a full dispatcher buffer.", "counter")
	w.sample(internaldefs.AuditDroppedName, "", dropped)

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		w.histogram(def.Name, def.Help, cumulative, snapshot.LatencySum[def.ID].Seconds())
	}

	if state, ok := p.source.(engineState); ok {
		w.header(internaldefs.AllowListSizeName, "Addresses on the admin allow-list.", "gauge")
		w.sample(internaldefs.AllowListSizeName, "", uint64(state.AllowListSize()))

		probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		up := uint64(0)
		if state.Health(probeCtx) == nil {
			up = 1
		}
		cancel()
		w.header(internaldefs.StoreUpName, "Whether the storage backend answered the last probe.", "gauge")
		w.sample(internaldefs.StoreUpName, "", up)
	}

	return w.String()
}

type textWriter struct {
	strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *textWriter) sample(name, labels string, value uint64) {
	w.WriteString(name)
	w.WriteString(labels)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(value, 10))
	w.WriteByte('\n')
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64, sumSeconds float64) {
	w.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	w.sample(name+"_count", "", cumulative[len(cumulative)-1])
	w.WriteString(name + "_sum " + strconv.FormatFloat(sumSeconds, 'g', -1, 64) + "\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
