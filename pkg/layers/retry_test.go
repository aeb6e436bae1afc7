package layers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	stub := newStub()
	failures := 3
	stub.statFn = func(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
		if failures > 0 {
			failures--
			return types.Metadata{}, serrors.New(serrors.KindServiceUnavailable, "backend warming up")
		}
		return types.NewMetadata(types.ModeFile), nil
	}

	acc := NewRetry(fastRetry(5)).Apply(stub)
	meta, err := acc.Stat(context.Background(), "a", types.OpStat{})

	require.NoError(t, err)
	assert.Equal(t, types.ModeFile, meta.Mode)
	assert.Equal(t, int64(4), stub.calls.stat.Load(), "3 failures + 1 success")
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	stub := newStub()
	stub.statFn = func(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
		return types.Metadata{}, serrors.New(serrors.KindNotFound, "no such object")
	}

	acc := NewRetry(fastRetry(5)).Apply(stub)
	_, err := acc.Stat(context.Background(), "a", types.OpStat{})

	assert.True(t, serrors.IsKind(err, serrors.KindNotFound))
	assert.Equal(t, int64(1), stub.calls.stat.Load(), "non-retryable errors must not be retried")
}

func TestRetryExhaustionAnnotatesAttempts(t *testing.T) {
	stub := newStub()
	stub.deleteFn = func(ctx context.Context, path string, args types.OpDelete) error {
		return serrors.New(serrors.KindRateLimited, "slow down")
	}

	acc := NewRetry(fastRetry(3)).Apply(stub)
	err := acc.Delete(context.Background(), "a", types.OpDelete{})

	require.Error(t, err)
	assert.True(t, serrors.IsKind(err, serrors.KindRateLimited), "kind survives exhaustion")
	assert.Equal(t, int64(3), stub.calls.delete.Load())

	var se *serrors.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Attempts)
}

func TestRetryObservesCancellation(t *testing.T) {
	stub := newStub()
	stub.statFn = func(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
		return types.Metadata{}, serrors.New(serrors.KindNetworkError, "flaky")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acc := NewRetry(fastRetry(5)).Apply(stub)
	_, err := acc.Stat(ctx, "a", types.OpStat{})

	assert.True(t, serrors.IsKind(err, serrors.KindCancelled))
	assert.Equal(t, int64(0), stub.calls.stat.Load(), "no attempt after cancellation")
}

func TestRetryMaxElapsedBoundsBudget(t *testing.T) {
	stub := newStub()
	stub.statFn = func(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
		return types.Metadata{}, serrors.New(serrors.KindServiceUnavailable, "down")
	}

	cfg := RetryConfig{
		MaxAttempts:  100,
		InitialDelay: time.Hour, // first backoff alone blows the elapsed budget
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		MaxElapsed:   time.Millisecond,
	}
	acc := NewRetry(cfg).Apply(stub)

	start := time.Now()
	_, err := acc.Stat(context.Background(), "a", types.OpStat{})

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), stub.calls.stat.Load())
}

func TestRetryInvokesOnRetryCallback(t *testing.T) {
	stub := newStub()
	stub.copyFn = func(ctx context.Context, from, to string, args types.OpCopy) error {
		return serrors.New(serrors.KindServiceUnavailable, "down")
	}

	var seen []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(op types.Operation, attempt int, err error, delay time.Duration) {
		assert.Equal(t, types.OperationCopy, op)
		seen = append(seen, attempt)
	}

	acc := NewRetry(cfg).Apply(stub)
	_ = acc.Copy(context.Background(), "a", "b", types.OpCopy{})

	assert.Equal(t, []int{1, 2}, seen, "callback fires before each retry, not the first attempt")
}

func TestRetryOpensStreamsOnly(t *testing.T) {
	stub := newStub()
	failures := 2
	stub.readFn = func(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
		if failures > 0 {
			failures--
			return nil, serrors.New(serrors.KindNetworkError, "connect reset")
		}
		return stubReaderFor("payload"), nil
	}

	acc := NewRetry(fastRetry(5)).Apply(stub)
	r, err := acc.Read(context.Background(), "a", types.OpRead{})

	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(3), stub.calls.read.Load())
}
