package layers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// Metrics records operation counts, durations, and stream byte counts as
// Prometheus metrics. Like all observability layers it never alters
// arguments, results, or error kinds, and never suspends or fails a call.
//
// Outcome labels use "ok" for success and the taxonomy kind for failures.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewMetrics creates a metrics layer registering its collectors with reg.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "operations_total",
			Help:      "Completed accessor operations by scheme, operation, and outcome kind.",
		}, []string{"scheme", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strata",
			Name:      "operation_duration_seconds",
			Help:      "Accessor operation latency by scheme and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scheme", "operation"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "stream_bytes_total",
			Help:      "Bytes moved through read and write streams by scheme and direction.",
		}, []string{"scheme", "direction"}),
	}
	reg.MustRegister(m.operations, m.duration, m.bytes)
	return m
}

// Apply implements Layer.
func (l *Metrics) Apply(inner types.Accessor) types.Accessor {
	return &metricsAccessor{
		inner:  inner,
		scheme: inner.Info().Scheme,
		m:      l,
	}
}

type metricsAccessor struct {
	inner  types.Accessor
	scheme string
	m      *Metrics
}

func (a *metricsAccessor) Info() types.AccessorInfo { return a.inner.Info() }

func (a *metricsAccessor) observe(op types.Operation, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(serrors.KindOf(err))
	}
	a.m.operations.WithLabelValues(a.scheme, string(op), outcome).Inc()
	a.m.duration.WithLabelValues(a.scheme, string(op)).Observe(time.Since(start).Seconds())
}

func (a *metricsAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	start := time.Now()
	meta, err := a.inner.Stat(ctx, path, args)
	a.observe(types.OperationStat, start, err)
	return meta, err
}

func (a *metricsAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	start := time.Now()
	r, err := a.inner.Read(ctx, path, args)
	a.observe(types.OperationRead, start, err)
	if err != nil {
		return nil, err
	}
	return &meteredReader{inner: r, counter: a.m.bytes.WithLabelValues(a.scheme, "read")}, nil
}

func (a *metricsAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	start := time.Now()
	w, err := a.inner.Write(ctx, path, args)
	a.observe(types.OperationWrite, start, err)
	if err != nil {
		return nil, err
	}
	return &meteredWriter{inner: w, counter: a.m.bytes.WithLabelValues(a.scheme, "write")}, nil
}

func (a *metricsAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path, args)
	a.observe(types.OperationDelete, start, err)
	return err
}

func (a *metricsAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	start := time.Now()
	l, err := a.inner.List(ctx, path, args)
	a.observe(types.OperationList, start, err)
	return l, err
}

func (a *metricsAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	start := time.Now()
	err := a.inner.Copy(ctx, from, to, args)
	a.observe(types.OperationCopy, start, err)
	return err
}

func (a *metricsAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	start := time.Now()
	err := a.inner.Rename(ctx, from, to, args)
	a.observe(types.OperationRename, start, err)
	return err
}

func (a *metricsAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	start := time.Now()
	req, err := a.inner.Presign(ctx, path, args)
	a.observe(types.OperationPresign, start, err)
	return req, err
}

type meteredReader struct {
	inner   types.Reader
	counter prometheus.Counter
}

func (r *meteredReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.counter.Add(float64(n))
	}
	return n, err
}

func (r *meteredReader) Close() error { return r.inner.Close() }

type meteredWriter struct {
	inner   types.Writer
	counter prometheus.Counter
}

func (w *meteredWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	if n > 0 {
		w.counter.Add(float64(n))
	}
	return n, err
}

func (w *meteredWriter) Close() error { return w.inner.Close() }
func (w *meteredWriter) Abort() error { return w.inner.Abort() }
