// Package httpfetch provides a read-only service over a plain HTTP origin.
// Stat maps to HEAD and Read to GET, with range reads when requested.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// Config configures the httpfetch service.
type Config struct {
	// Endpoint is the origin base URL, e.g. "https://cdn.example.com/data".
	// Required.
	Endpoint string
	// Client overrides the HTTP client. Defaults to http.DefaultClient.
	Client *http.Client
	// UserAgent is sent with every request when set.
	UserAgent string
}

// Service fetches objects from an HTTP origin.
type Service struct {
	info      types.AccessorInfo
	endpoint  string
	client    *http.Client
	userAgent string
}

// New creates an httpfetch service.
func New(cfg Config) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, serrors.New(serrors.KindInvalidArgument, "endpoint is required").WithScheme("http")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, serrors.Newf(serrors.KindInvalidArgument, "invalid endpoint %q", cfg.Endpoint).WithScheme("http")
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{
		endpoint:  strings.TrimSuffix(cfg.Endpoint, "/"),
		client:    client,
		userAgent: cfg.UserAgent,
		info: types.AccessorInfo{
			Scheme: "http",
			Name:   u.Host,
			Root:   "/",
			Capability: types.Capability{
				Stat:          true,
				Read:          true,
				ReadWithRange: true,
			},
		},
	}, nil
}

// Info implements types.Accessor.
func (s *Service) Info() types.AccessorInfo { return s.info }

func (s *Service) url(path string) string {
	return s.endpoint + "/" + strings.TrimPrefix(path, "/")
}

func (s *Service) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url(path), nil)
	if err != nil {
		return nil, serrors.Newf(serrors.KindInvalidArgument, "invalid request path %q", path).WithScheme("http").WithCause(err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	return req, nil
}

func (s *Service) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	req, err := s.newRequest(ctx, http.MethodHead, path)
	if err != nil {
		return types.Metadata{}, err
	}
	if args.IfMatch != "" {
		req.Header.Set("If-Match", args.IfMatch)
	}
	if args.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", args.IfNoneMatch)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return types.Metadata{}, mapTransportError(err)
	}
	defer resp.Body.Close()
	if err := mapStatus(resp.StatusCode); err != nil {
		return types.Metadata{}, err
	}

	meta := types.Metadata{
		Mode:          types.ModeFile,
		ContentLength: types.LengthUnknown,
		ETag:          resp.Header.Get("Etag"),
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if resp.ContentLength >= 0 {
		meta.ContentLength = resp.ContentLength
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, perr := http.ParseTime(lm); perr == nil {
			meta.LastModified = t
		}
	}
	return meta, nil
}

func (s *Service) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	req, err := s.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if !args.Range.IsFull() {
		req.Header.Set("Range", args.Range.String())
	}
	if args.IfMatch != "" {
		req.Header.Set("If-Match", args.IfMatch)
	}
	if args.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", args.IfNoneMatch)
	}
	if !args.IfModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", args.IfModifiedSince.UTC().Format(http.TimeFormat))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	if err := mapStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	// A ranged request against an origin that ignores Range comes back as
	// 200 with the full body; callers relying on the range would corrupt
	// data silently, so reject it.
	if !args.Range.IsFull() && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, serrors.New(serrors.KindUnsupported, "origin does not honor range requests").WithScheme("http")
	}
	return &reader{ctx: ctx, body: resp.Body}, nil
}

func (s *Service) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationWrite))
}

func (s *Service) Delete(ctx context.Context, path string, args types.OpDelete) error {
	return serrors.Unsupported(s.info.Scheme, string(types.OperationDelete))
}

func (s *Service) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationList))
}

func (s *Service) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	return serrors.Unsupported(s.info.Scheme, string(types.OperationCopy))
}

func (s *Service) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	return serrors.Unsupported(s.info.Scheme, string(types.OperationRename))
}

func (s *Service) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationPresign))
}

// mapStatus translates a non-success HTTP status into the error taxonomy.
func mapStatus(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return serrors.New(serrors.KindNotFound, "object not found").WithScheme("http")
	case http.StatusUnauthorized, http.StatusForbidden:
		return serrors.New(serrors.KindPermissionDenied, "access denied").WithScheme("http")
	case http.StatusPreconditionFailed, http.StatusNotModified:
		return serrors.New(serrors.KindInvalidArgument, "precondition failed").WithScheme("http")
	case http.StatusRequestedRangeNotSatisfiable:
		return serrors.New(serrors.KindRangeNotSatisfiable, "range not satisfiable").WithScheme("http")
	case http.StatusTooManyRequests:
		return serrors.New(serrors.KindRateLimited, "rate limited").WithScheme("http")
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return serrors.New(serrors.KindServiceUnavailable, "service unavailable").WithScheme("http")
	default:
		return serrors.Unexpected(fmt.Sprintf("unexpected status %d", code), nil).WithScheme("http")
	}
}

func mapTransportError(err error) error {
	if ctxErr := serrors.FromContext(err); serrors.IsKind(ctxErr, serrors.KindCancelled) {
		return ctxErr
	}
	return serrors.New(serrors.KindNetworkError, "request failed").WithScheme("http").WithCause(err)
}

type reader struct {
	ctx  context.Context
	body io.ReadCloser
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF {
		err = mapTransportError(err)
	}
	return n, err
}

func (r *reader) Close() error { return r.body.Close() }
