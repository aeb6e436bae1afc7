package httpfetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// originHandler serves a fixed object at /data.bin with range support.
func originHandler(payload []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.bin" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Etag", `"abc123"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))

		if rng := r.Header.Get("Range"); rng != "" {
			// Only "bytes=start-end" and "bytes=start-" reach an origin.
			spec := strings.TrimPrefix(rng, "bytes=")
			parts := strings.SplitN(spec, "-", 2)
			start, _ := strconv.Atoi(parts[0])
			end := len(payload) - 1
			if parts[1] != "" {
				end, _ = strconv.Atoi(parts[1])
			}
			if start >= len(payload) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", "bytes "+spec+"/"+strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[start : end+1])
			return
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(payload)
	})
}

func newService(t *testing.T, h http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := New(Config{Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	return svc
}

func TestNewValidatesEndpoint(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, serrors.IsKind(err, serrors.KindInvalidArgument))

	_, err = New(Config{Endpoint: "ftp://example.com"})
	assert.True(t, serrors.IsKind(err, serrors.KindInvalidArgument))
}

func TestCapabilityIsReadOnly(t *testing.T) {
	svc := newService(t, originHandler([]byte("x")))
	cap := svc.Info().Capability

	assert.True(t, cap.Supports(types.OperationStat))
	assert.True(t, cap.Supports(types.OperationRead))
	assert.True(t, cap.ReadWithRange)
	assert.False(t, cap.Supports(types.OperationWrite))
	assert.False(t, cap.Supports(types.OperationDelete))
	assert.False(t, cap.Supports(types.OperationList))
}

func TestStat(t *testing.T) {
	svc := newService(t, originHandler([]byte("hello origin")))

	meta, err := svc.Stat(context.Background(), "data.bin", types.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, types.ModeFile, meta.Mode)
	assert.Equal(t, int64(12), meta.ContentLength)
	assert.Equal(t, `"abc123"`, meta.ETag)
	assert.Equal(t, "application/octet-stream", meta.ContentType)
	assert.False(t, meta.LastModified.IsZero())
}

func TestStatNotFound(t *testing.T) {
	svc := newService(t, originHandler(nil))

	_, err := svc.Stat(context.Background(), "missing", types.OpStat{})
	assert.True(t, serrors.IsKind(err, serrors.KindNotFound))
}

func TestRead(t *testing.T) {
	svc := newService(t, originHandler([]byte("hello origin")))

	r, err := svc.Read(context.Background(), "data.bin", types.OpRead{})
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello origin", string(data))
}

func TestReadRange(t *testing.T) {
	svc := newService(t, originHandler([]byte("0123456789")))

	r, err := svc.Read(context.Background(), "data.bin", types.OpRead{Range: types.NewRange(2, 3)})
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))
}

func TestReadCancelledMidStream(t *testing.T) {
	svc := newService(t, originHandler([]byte("0123456789")))

	ctx, cancel := context.WithCancel(context.Background())
	r, err := svc.Read(ctx, "data.bin", types.OpRead{})
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 4)
	_, err = r.Read(buf)
	require.NoError(t, err)

	cancel()
	_, err = r.Read(buf)
	assert.True(t, serrors.IsKind(err, serrors.KindCancelled))
}

func TestReadRangeBeyondEnd(t *testing.T) {
	svc := newService(t, originHandler([]byte("0123456789")))

	_, err := svc.Read(context.Background(), "data.bin", types.OpRead{Range: types.RangeFrom(100)})
	assert.True(t, serrors.IsKind(err, serrors.KindRangeNotSatisfiable))
}

func TestReadRejectsIgnoredRange(t *testing.T) {
	// An origin that ignores Range and replies 200 with the full body.
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("full body regardless"))
	}))

	_, err := svc.Read(context.Background(), "data.bin", types.OpRead{Range: types.NewRange(0, 4)})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   serrors.Kind
	}{
		{http.StatusNotFound, serrors.KindNotFound},
		{http.StatusForbidden, serrors.KindPermissionDenied},
		{http.StatusUnauthorized, serrors.KindPermissionDenied},
		{http.StatusTooManyRequests, serrors.KindRateLimited},
		{http.StatusServiceUnavailable, serrors.KindServiceUnavailable},
		{http.StatusBadGateway, serrors.KindServiceUnavailable},
		{http.StatusPreconditionFailed, serrors.KindInvalidArgument},
		{http.StatusTeapot, serrors.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := svc.Stat(context.Background(), "x", types.OpStat{})
			assert.True(t, serrors.IsKind(err, tt.kind), "status %d", tt.status)
		})
	}
}

func TestRetryableClassification(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := svc.Stat(context.Background(), "x", types.OpStat{})
	assert.True(t, serrors.IsRetryable(err))
}

func TestMutationsUnsupported(t *testing.T) {
	svc := newService(t, originHandler(nil))
	ctx := context.Background()

	_, err := svc.Write(ctx, "a", types.OpWrite{})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))

	err = svc.Delete(ctx, "a", types.OpDelete{})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))

	_, err = svc.List(ctx, "a/", types.OpList{})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))

	err = svc.Copy(ctx, "a", "b", types.OpCopy{})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))
}

func TestCancelledContext(t *testing.T) {
	svc := newService(t, originHandler([]byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Stat(ctx, "data.bin", types.OpStat{})
	assert.True(t, serrors.IsKind(err, serrors.KindCancelled))
}

func TestUserAgentHeader(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	t.Cleanup(srv.Close)

	svc, err := New(Config{Endpoint: srv.URL, Client: srv.Client(), UserAgent: "strata-test/1.0"})
	require.NoError(t, err)

	_, err = svc.Stat(context.Background(), "x", types.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, "strata-test/1.0", gotUA)
}
