package layers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratastore/strata/pkg/types"
)

const tracerName = "github.com/stratastore/strata"

// Tracing opens an OpenTelemetry span around every operation, recording the
// scheme, operation, and path, and marking the span's status from the
// outcome. For Read and Write the span covers the whole stream and ends when
// the Reader or Writer is closed.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates a tracing layer. A nil provider falls back to the
// global otel tracer provider.
func NewTracing(provider trace.TracerProvider) *Tracing {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracing{tracer: provider.Tracer(tracerName)}
}

// Apply implements Layer.
func (l *Tracing) Apply(inner types.Accessor) types.Accessor {
	return &tracingAccessor{
		inner:  inner,
		scheme: inner.Info().Scheme,
		tracer: l.tracer,
	}
}

type tracingAccessor struct {
	inner  types.Accessor
	scheme string
	tracer trace.Tracer
}

func (a *tracingAccessor) Info() types.AccessorInfo { return a.inner.Info() }

func (a *tracingAccessor) start(ctx context.Context, op types.Operation, path string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "strata."+string(op),
		trace.WithAttributes(
			attribute.String("strata.scheme", a.scheme),
			attribute.String("strata.operation", string(op)),
			attribute.String("strata.path", path),
		),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (a *tracingAccessor) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	ctx, span := a.start(ctx, types.OperationStat, path)
	meta, err := a.inner.Stat(ctx, path, args)
	end(span, err)
	return meta, err
}

func (a *tracingAccessor) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	ctx, span := a.start(ctx, types.OperationRead, path)
	r, err := a.inner.Read(ctx, path, args)
	if err != nil {
		end(span, err)
		return nil, err
	}
	return &spannedReader{inner: r, span: span}, nil
}

func (a *tracingAccessor) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	ctx, span := a.start(ctx, types.OperationWrite, path)
	w, err := a.inner.Write(ctx, path, args)
	if err != nil {
		end(span, err)
		return nil, err
	}
	return &spannedWriter{inner: w, span: span}, nil
}

func (a *tracingAccessor) Delete(ctx context.Context, path string, args types.OpDelete) error {
	ctx, span := a.start(ctx, types.OperationDelete, path)
	err := a.inner.Delete(ctx, path, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	ctx, span := a.start(ctx, types.OperationList, path)
	l, err := a.inner.List(ctx, path, args)
	end(span, err)
	return l, err
}

func (a *tracingAccessor) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	ctx, span := a.start(ctx, types.OperationCopy, from)
	span.SetAttributes(attribute.String("strata.target", to))
	err := a.inner.Copy(ctx, from, to, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	ctx, span := a.start(ctx, types.OperationRename, from)
	span.SetAttributes(attribute.String("strata.target", to))
	err := a.inner.Rename(ctx, from, to, args)
	end(span, err)
	return err
}

func (a *tracingAccessor) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	ctx, span := a.start(ctx, types.OperationPresign, path)
	req, err := a.inner.Presign(ctx, path, args)
	end(span, err)
	return req, err
}

type spannedReader struct {
	inner types.Reader
	span  trace.Span
	bytes int64
}

func (r *spannedReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.bytes += int64(n)
	return n, err
}

func (r *spannedReader) Close() error {
	err := r.inner.Close()
	r.span.SetAttributes(attribute.Int64("strata.bytes", r.bytes))
	end(r.span, err)
	return err
}

type spannedWriter struct {
	inner types.Writer
	span  trace.Span
	bytes int64
}

func (w *spannedWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *spannedWriter) Close() error {
	err := w.inner.Close()
	w.span.SetAttributes(attribute.Int64("strata.bytes", w.bytes))
	end(w.span, err)
	return err
}

func (w *spannedWriter) Abort() error {
	err := w.inner.Abort()
	w.span.SetAttributes(attribute.Bool("strata.aborted", true))
	end(w.span, err)
	return err
}
