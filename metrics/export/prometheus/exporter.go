package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/MrEthical07/goFeedback/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goFeedback.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter serves the client's metric families in the Prometheus
// text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from client on every scrape.
func NewPrometheusExporter(client *goFeedback.Client) *PrometheusExporter {
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render on every request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns one scrape, or "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, fam := range internaldefs.CounterFamilies {
		writeHeader(&b, fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			writeSample(&b, fam.Name, s.Labels, nil, snapshot.Counters[s.ID])
		}
	}

	if len(snapshot.Histograms) > 0 {
		writeDurations(&b, internaldefs.DurationFamily, snapshot.Histograms)
	}

	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	writeSample(&b, internaldefs.AuditDroppedName, nil, nil, dropped)

	return b.String()
}

// writeDurations renders one histogram series per operation. Snapshots keep
// bucket counts only, so _sum is not exposed.
func writeDurations(b *strings.Builder, fam internaldefs.Family, histograms map[goFeedback.MetricID][]uint64) {
	writeHeader(b, fam.Name, fam.Help, "histogram")
	for _, s := range fam.Series {
		cumulative := internaldefs.Cumulative(histograms[s.ID])
		for i, le := range internaldefs.BucketBounds {
			writeSample(b, fam.Name+"_bucket", s.Labels, &internaldefs.Label{Name: "le", Value: le}, cumulative[i])
		}
		writeSample(b, fam.Name+"_count", s.Labels, nil, cumulative[len(cumulative)-1])
	}
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, labels []internaldefs.Label, extra *internaldefs.Label, value uint64) {
	b.WriteString(name)
	if len(labels) > 0 || extra != nil {
		b.WriteByte('{')
		sep := ""
		for _, l := range labels {
			b.WriteString(sep)
			writeLabel(b, l)
			sep = ","
		}
		if extra != nil {
			b.WriteString(sep)
			writeLabel(b, *extra)
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeLabel(b *strings.Builder, l internaldefs.Label) {
	b.WriteString(l.Name)
	b.WriteString(`="`)
	b.WriteString(labelEscaper.Replace(l.Value))
	b.WriteByte('"')
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
