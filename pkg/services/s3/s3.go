// Package s3 provides an Amazon S3 (and S3-compatible) storage service
// built on aws-sdk-go-v2.
package s3

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

const (
	defaultPartSize = 8 * 1024 * 1024
	minPartSize     = 5 * 1024 * 1024
	maxListPage     = 1000
)

// Config configures the s3 service.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string
	// Region of the bucket. Falls back to the SDK's resolution when empty.
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	Endpoint string
	// Root is the working directory all paths resolve under.
	Root string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible servers.
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey override the SDK credential chain
	// when both are set.
	AccessKeyID     string
	SecretAccessKey string
	// PartSize for multipart uploads; defaults to 8 MiB, floor 5 MiB.
	PartSize int64
}

// api is the subset of the S3 client the service uses. Tests substitute a
// stub.
type api interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Service is an S3 accessor.
type Service struct {
	info      types.AccessorInfo
	client    api
	presigner *s3.PresignClient
	bucket    string
	partSize  int64
}

// New creates an s3 service, loading AWS configuration from the default
// chain overridden by cfg.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, serrors.New(serrors.KindInvalidArgument, "bucket is required").WithScheme("s3")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, serrors.Unexpected("failed to load AWS config", err).WithScheme("s3")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	svc := newWithClient(client, cfg)
	svc.presigner = s3.NewPresignClient(client)
	return svc, nil
}

// newWithClient wires a service around an existing client. Used by New and
// by tests.
func newWithClient(client api, cfg Config) *Service {
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = defaultPartSize
	}
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return &Service{
		client:   client,
		bucket:   cfg.Bucket,
		partSize: partSize,
		info: types.AccessorInfo{
			Scheme: "s3",
			Name:   cfg.Bucket,
			Root:   types.NormalizeRoot(cfg.Root),
			Capability: types.Capability{
				Stat:               true,
				Read:               true,
				ReadWithRange:      true,
				Write:              true,
				WriteMultipart:     true,
				Delete:             true,
				List:               true,
				ListWithDelimiter:  true,
				ListWithStartAfter: true,
				Copy:               true,
				Presign:            true,
				MaxListPageSize:    maxListPage,
			},
		},
	}
}

// Info implements types.Accessor.
func (s *Service) Info() types.AccessorInfo { return s.info }

// key resolves a normalized path to the object key under the root.
func (s *Service) key(path string) string {
	return strings.TrimPrefix(s.info.Root+strings.TrimPrefix(path, "/"), "/")
}

// path converts an object key back into a path relative to the root.
func (s *Service) path(key string) string {
	root := strings.TrimPrefix(s.info.Root, "/")
	return strings.TrimPrefix(key, root)
}

func (s *Service) Stat(ctx context.Context, path string, args types.OpStat) (types.Metadata, error) {
	if path == "/" {
		return types.NewMetadata(types.ModeDir), nil
	}

	in := &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}
	if args.IfMatch != "" {
		in.IfMatch = aws.String(args.IfMatch)
	}
	if args.IfNoneMatch != "" {
		in.IfNoneMatch = aws.String(args.IfNoneMatch)
	}

	out, err := s.client.HeadObject(ctx, in)
	if err != nil {
		// Object stores have no real directories; a "/"-suffixed path
		// exists as soon as anything could live under it.
		if types.IsDirPath(path) && serrors.IsKind(mapError(err), serrors.KindNotFound) {
			return types.NewMetadata(types.ModeDir), nil
		}
		return types.Metadata{}, mapError(err)
	}

	meta := types.Metadata{
		Mode:          types.ModeFile,
		ContentLength: aws.ToInt64(out.ContentLength),
		LastModified:  aws.ToTime(out.LastModified),
		ETag:          aws.ToString(out.ETag),
		ContentType:   aws.ToString(out.ContentType),
	}
	if types.IsDirPath(path) {
		meta.Mode = types.ModeDir
	}
	return meta, nil
}

func (s *Service) Read(ctx context.Context, path string, args types.OpRead) (types.Reader, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}
	if !args.Range.IsFull() {
		in.Range = aws.String(args.Range.String())
	}
	if args.IfMatch != "" {
		in.IfMatch = aws.String(args.IfMatch)
	}
	if args.IfNoneMatch != "" {
		in.IfNoneMatch = aws.String(args.IfNoneMatch)
	}
	if !args.IfModifiedSince.IsZero() {
		in.IfModifiedSince = aws.Time(args.IfModifiedSince)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, mapError(err)
	}
	return &reader{ctx: ctx, body: out.Body}, nil
}

func (s *Service) Write(ctx context.Context, path string, args types.OpWrite) (types.Writer, error) {
	return newWriter(ctx, s, s.key(path), args), nil
}

func (s *Service) Delete(ctx context.Context, path string, args types.OpDelete) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		// DeleteObject on a missing key already succeeds on AWS; keep the
		// idempotent contract for stricter S3-compatible servers too.
		if serrors.IsKind(mapError(err), serrors.KindNotFound) {
			return nil
		}
		return mapError(err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, path string, args types.OpList) (types.Lister, error) {
	prefix := s.key(path)

	limit := int32(args.Limit)
	if limit <= 0 || limit > maxListPage {
		limit = maxListPage
	}

	return types.NewPageLister(func(ctx context.Context, token string) ([]types.Entry, string, error) {
		in := &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(limit),
		}
		if args.Delimiter != "" {
			in.Delimiter = aws.String(args.Delimiter)
		}
		if args.StartAfter != "" {
			in.StartAfter = aws.String(s.key(args.StartAfter))
		}
		if token != "" {
			in.ContinuationToken = aws.String(token)
		}

		out, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, "", mapError(err)
		}

		entries := make([]types.Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
		for _, cp := range out.CommonPrefixes {
			entries = append(entries, types.Entry{
				Path:     s.path(aws.ToString(cp.Prefix)),
				Metadata: types.NewMetadata(types.ModeDir),
			})
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix && strings.HasSuffix(key, "/") {
				continue // the directory marker itself
			}
			entries = append(entries, types.Entry{
				Path: s.path(key),
				Metadata: types.Metadata{
					Mode:          types.ModeFile,
					ContentLength: aws.ToInt64(obj.Size),
					LastModified:  aws.ToTime(obj.LastModified),
					ETag:          aws.ToString(obj.ETag),
				},
			})
		}

		next := ""
		if aws.ToBool(out.IsTruncated) {
			next = aws.ToString(out.NextContinuationToken)
		}
		return entries, next, nil
	}), nil
}

func (s *Service) Copy(ctx context.Context, from, to string, args types.OpCopy) error {
	if !args.Overwrite {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(to)),
		})
		if err == nil {
			return serrors.New(serrors.KindAlreadyExists, "destination already exists")
		}
		if mapped := mapError(err); !serrors.IsKind(mapped, serrors.KindNotFound) {
			return mapped
		}
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(to)),
		CopySource: aws.String(s.bucket + "/" + s.key(from)),
	})
	return mapError(err)
}

func (s *Service) Rename(ctx context.Context, from, to string, args types.OpRename) error {
	// S3 has no native rename; stack layers.RenameEmulation to get one.
	return serrors.Unsupported(s.info.Scheme, string(types.OperationRename))
}

func (s *Service) Presign(ctx context.Context, path string, args types.OpPresign) (*types.PresignedRequest, error) {
	if s.presigner == nil {
		return nil, serrors.Unsupported(s.info.Scheme, string(types.OperationPresign))
	}

	expire := args.Expire
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	withExpiry := func(o *s3.PresignOptions) { o.Expires = expire }

	bucket := aws.String(s.bucket)
	key := aws.String(s.key(path))

	var (
		method string
		url    string
		header = map[string][]string{}
	)
	switch args.Operation {
	case types.PresignStat:
		req, err := s.presigner.PresignHeadObject(ctx, &s3.HeadObjectInput{Bucket: bucket, Key: key}, withExpiry)
		if err != nil {
			return nil, mapError(err)
		}
		method, url, header = req.Method, req.URL, req.SignedHeader
	case types.PresignRead:
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: key}, withExpiry)
		if err != nil {
			return nil, mapError(err)
		}
		method, url, header = req.Method, req.URL, req.SignedHeader
	case types.PresignWrite:
		req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{Bucket: bucket, Key: key}, withExpiry)
		if err != nil {
			return nil, mapError(err)
		}
		method, url, header = req.Method, req.URL, req.SignedHeader
	default:
		return nil, serrors.Newf(serrors.KindInvalidArgument, "unknown presign operation %d", args.Operation)
	}

	return &types.PresignedRequest{
		Method:  method,
		URL:     url,
		Header:  header,
		Expires: time.Now().Add(expire),
	}, nil
}

// reader streams a GetObject body, observing cancellation per chunk.
type reader struct {
	ctx  context.Context
	body io.ReadCloser
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}
	return r.body.Read(p)
}

func (r *reader) Close() error { return r.body.Close() }
