package otel

import (
	"context"
	"errors"
	"fmt"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/MrEthical07/goFeedback/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goFeedback.MetricsSnapshot
	AuditDropped() uint64
}

// point is one client counter observed under a fixed attribute set.
type point struct {
	id    goFeedback.MetricID
	attrs metric.MeasurementOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	points     []point
}

// durationPoint observes one operation's latency buckets. bounds[i] carries
// the operation and le attributes of bucket i.
type durationPoint struct {
	id     goFeedback.MetricID
	bounds []metric.MeasurementOption
	count  metric.MeasurementOption
}

// OTelExporter observes the client's metric families as OTel instruments.
// Each family is one instrument; its labels become attributes.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family

	buckets   metric.Int64ObservableCounter
	count     metric.Int64ObservableCounter
	durations []durationPoint

	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *goFeedback.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterFamilies)+3)

	for _, def := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{instrument: ins, points: make([]point, 0, len(def.Series))}
		for _, s := range def.Series {
			f.points = append(f.points, point{id: s.ID, attrs: withLabels(s.Labels)})
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	dur := internaldefs.DurationFamily
	var err error
	if e.buckets, err = meter.Int64ObservableCounter(dur.Name+"_bucket",
		metric.WithDescription(dur.Help+" Cumulative count per le bound."),
	); err != nil {
		return nil, fmt.Errorf("create duration buckets: %w", err)
	}
	if e.count, err = meter.Int64ObservableCounter(dur.Name+"_count",
		metric.WithDescription(dur.Help+" Sample count."),
	); err != nil {
		return nil, fmt.Errorf("create duration count: %w", err)
	}
	for _, s := range dur.Series {
		dp := durationPoint{id: s.ID, count: withLabels(s.Labels)}
		for _, le := range internaldefs.BucketBounds {
			labels := append(append([]internaldefs.Label(nil), s.Labels...), internaldefs.Label{Name: "le", Value: le})
			dp.bounds = append(dp.bounds, withLabels(labels))
		}
		e.durations = append(e.durations, dp)
	}
	observables = append(observables, e.buckets, e.count)

	if e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, p := range f.points {
			o.ObserveInt64(f.instrument, int64(snapshot.Counters[p.id]), p.attrs)
		}
	}
	if len(snapshot.Histograms) > 0 {
		for _, d := range e.durations {
			cumulative := internaldefs.Cumulative(snapshot.Histograms[d.id])
			for i, attrs := range d.bounds {
				o.ObserveInt64(e.buckets, int64(cumulative[i]), attrs)
			}
			o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]), d.count)
		}
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func withLabels(labels []internaldefs.Label) metric.MeasurementOption {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		kvs = append(kvs, attribute.String(l.Name, l.Value))
	}
	return metric.WithAttributeSet(attribute.NewSet(kvs...))
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
