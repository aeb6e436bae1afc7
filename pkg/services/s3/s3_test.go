package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// fakeS3 is an in-memory stand-in for the S3 API subset the service uses.
type fakeS3 struct {
	objects map[string][]byte

	uploads     map[string]map[int32][]byte // uploadID -> part number -> bytes
	uploadSeq   int
	aborted     []string
	putCalls    int
	partCalls   int
	listMaxKeys []int32

	headErr error
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func (f *fakeS3) HeadObject(ctx context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(`"fake"`),
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.putCalls++
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	// CopySource is "bucket/key".
	src := aws.ToString(in.CopySource)
	for i := 0; i < len(src); i++ {
		if src[i] == '/' {
			src = src[i+1:]
			break
		}
	}
	data, ok := f.objects[src]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = append([]byte(nil), data...)
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.listMaxKeys = append(f.listMaxKeys, aws.ToInt32(in.MaxKeys))

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	limit := int(aws.ToInt32(in.MaxKeys))
	if limit <= 0 {
		limit = 1000
	}

	end := start + limit
	truncated := end < len(keys)
	if end > len(keys) {
		end = len(keys)
	}

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	if truncated {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	f.uploadSeq++
	id := fmt.Sprintf("upload-%d", f.uploadSeq)
	f.uploads[id] = make(map[int32][]byte)
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	f.partCalls++
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	parts[aws.ToInt32(in.PartNumber)] = data
	return &awss3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-%d"`, aws.ToInt32(in.PartNumber)))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	var nums []int
	for n := range parts {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	var buf bytes.Buffer
	for _, n := range nums {
		buf.Write(parts[int32(n)])
	}
	f.objects[aws.ToString(in.Key)] = buf.Bytes()
	delete(f.uploads, aws.ToString(in.UploadId))
	return &awss3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	id := aws.ToString(in.UploadId)
	delete(f.uploads, id)
	f.aborted = append(f.aborted, id)
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func newTestService(fake *fakeS3) *Service {
	svc := newWithClient(fake, Config{Bucket: "test-bucket"})
	svc.partSize = 8 // tiny parts keep multipart tests cheap
	return svc
}

func TestStat(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a.txt"] = []byte("hello")
	svc := newTestService(fake)

	meta, err := svc.Stat(context.Background(), "a.txt", types.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, types.ModeFile, meta.Mode)
	assert.Equal(t, int64(5), meta.ContentLength)
	assert.Equal(t, `"fake"`, meta.ETag)
}

func TestStatMissing(t *testing.T) {
	svc := newTestService(newFakeS3())

	_, err := svc.Stat(context.Background(), "ghost", types.OpStat{})
	assert.True(t, serrors.IsKind(err, serrors.KindNotFound))
}

func TestStatRootAndDirPaths(t *testing.T) {
	svc := newTestService(newFakeS3())

	meta, err := svc.Stat(context.Background(), "/", types.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, types.ModeDir, meta.Mode)

	// A "/"-suffixed path with no marker object still stats as a directory.
	meta, err = svc.Stat(context.Background(), "prefix/", types.OpStat{})
	require.NoError(t, err)
	assert.Equal(t, types.ModeDir, meta.Mode)
}

func TestRead(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a"] = []byte("payload")
	svc := newTestService(fake)

	r, err := svc.Read(context.Background(), "a", types.OpRead{})
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSmallWriteUsesPutObject(t *testing.T) {
	fake := newFakeS3()
	svc := newTestService(fake)

	w, err := svc.Write(context.Background(), "small", types.OpWrite{})
	require.NoError(t, err)
	_, err = w.Write([]byte("tiny"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, 1, fake.putCalls)
	assert.Equal(t, 0, fake.partCalls, "payload under one part must not go multipart")
	assert.Equal(t, []byte("tiny"), fake.objects["small"])
}

func TestLargeWriteGoesMultipart(t *testing.T) {
	fake := newFakeS3()
	svc := newTestService(fake) // partSize 8

	payload := []byte("0123456789abcdefghij") // 20 bytes -> parts of 8, 8, 4
	w, err := svc.Write(context.Background(), "large", types.OpWrite{})
	require.NoError(t, err)

	// Dribble bytes in to exercise buffering across Write calls.
	for _, b := range payload {
		_, err = w.Write([]byte{b})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.Equal(t, 0, fake.putCalls)
	assert.Equal(t, 3, fake.partCalls)
	assert.Equal(t, payload, fake.objects["large"])
	assert.Empty(t, fake.uploads, "upload finalized")
}

func TestWriteAbortTearsDownUpload(t *testing.T) {
	fake := newFakeS3()
	svc := newTestService(fake)

	w, err := svc.Write(context.Background(), "aborted", types.OpWrite{})
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("x"), 20)) // forces multipart
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	assert.Len(t, fake.aborted, 1)
	assert.NotContains(t, fake.objects, "aborted")

	_, err = w.Write([]byte("late"))
	assert.True(t, serrors.IsKind(err, serrors.KindAlreadyClosed))
}

func TestDeleteIdempotent(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a"] = []byte("x")
	svc := newTestService(fake)

	require.NoError(t, svc.Delete(context.Background(), "a", types.OpDelete{}))
	require.NoError(t, svc.Delete(context.Background(), "a", types.OpDelete{}))
}

func TestListPaginates(t *testing.T) {
	fake := newFakeS3()
	for i := 0; i < 7; i++ {
		fake.objects[fmt.Sprintf("docs/%d", i)] = []byte("x")
	}
	svc := newTestService(fake)

	l, err := svc.List(context.Background(), "docs/", types.OpList{Limit: 3})
	require.NoError(t, err)

	var paths []string
	for {
		e, err := l.Next(context.Background())
		require.NoError(t, err)
		if e == nil {
			break
		}
		paths = append(paths, e.Path)
	}

	require.Len(t, paths, 7)
	for i, p := range paths {
		assert.Equal(t, fmt.Sprintf("docs/%d", i), p)
	}
	assert.Len(t, fake.listMaxKeys, 3, "7 keys at page size 3 take 3 requests")
}

func TestCopy(t *testing.T) {
	fake := newFakeS3()
	fake.objects["src"] = []byte("payload")
	svc := newTestService(fake)

	require.NoError(t, svc.Copy(context.Background(), "src", "dst", types.OpCopy{}))
	assert.Equal(t, []byte("payload"), fake.objects["dst"])

	err := svc.Copy(context.Background(), "src", "dst", types.OpCopy{})
	assert.True(t, serrors.IsKind(err, serrors.KindAlreadyExists))

	assert.NoError(t, svc.Copy(context.Background(), "src", "dst", types.OpCopy{Overwrite: true}))
}

func TestRenameUnsupported(t *testing.T) {
	svc := newTestService(newFakeS3())

	err := svc.Rename(context.Background(), "a", "b", types.OpRename{})
	assert.True(t, serrors.IsKind(err, serrors.KindUnsupported))
	assert.False(t, svc.Info().Capability.Rename)
}

func TestRootPrefixing(t *testing.T) {
	fake := newFakeS3()
	svc := newWithClient(fake, Config{Bucket: "b", Root: "tenant/42"})
	svc.partSize = 8

	w, err := svc.Write(context.Background(), "file", types.OpWrite{})
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Contains(t, fake.objects, "tenant/42/file")
}

func TestErrorMapping(t *testing.T) {
	apiErr := func(code string) error {
		return &smithy.GenericAPIError{Code: code, Message: code}
	}

	tests := []struct {
		name string
		err  error
		kind serrors.Kind
	}{
		{"nil", nil, ""},
		{"NoSuchKey typed", &s3types.NoSuchKey{}, serrors.KindNotFound},
		{"NoSuchBucket typed", &s3types.NoSuchBucket{}, serrors.KindNotFound},
		{"NotFound typed", &s3types.NotFound{}, serrors.KindNotFound},
		{"NoSuchKey code", apiErr("NoSuchKey"), serrors.KindNotFound},
		{"AccessDenied", apiErr("AccessDenied"), serrors.KindPermissionDenied},
		{"SlowDown", apiErr("SlowDown"), serrors.KindRateLimited},
		{"Throttling", apiErr("Throttling"), serrors.KindRateLimited},
		{"ServiceUnavailable", apiErr("ServiceUnavailable"), serrors.KindServiceUnavailable},
		{"InternalError", apiErr("InternalError"), serrors.KindServiceUnavailable},
		{"InvalidRange", apiErr("InvalidRange"), serrors.KindRangeNotSatisfiable},
		{"PreconditionFailed", apiErr("PreconditionFailed"), serrors.KindInvalidArgument},
		{"unknown code", apiErr("SomethingNew"), serrors.KindUnexpected},
		{"cancelled", context.Canceled, serrors.KindCancelled},
		{"plain error", fmt.Errorf("boom"), serrors.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError(tt.err)
			if tt.kind == "" {
				assert.NoError(t, mapped)
				return
			}
			assert.True(t, serrors.IsKind(mapped, tt.kind), "got %v", mapped)
		})
	}
}

func TestRetryableMapping(t *testing.T) {
	retryable := []string{"SlowDown", "ServiceUnavailable", "InternalError"}
	for _, code := range retryable {
		err := mapError(&smithy.GenericAPIError{Code: code})
		assert.True(t, serrors.IsRetryable(err), "%s must map to a retryable kind", code)
	}

	err := mapError(&s3types.NoSuchKey{})
	assert.False(t, serrors.IsRetryable(err))
}
