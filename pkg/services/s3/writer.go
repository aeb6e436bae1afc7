package s3

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	serrors "github.com/stratastore/strata/pkg/errors"
	"github.com/stratastore/strata/pkg/types"
)

// writer accumulates bytes and uploads them as a single PutObject when the
// payload stays under one part, switching to a multipart upload otherwise.
// Nothing is visible at the key until Close succeeds.
type writer struct {
	ctx  context.Context
	svc  *Service
	key  string
	args writerArgs

	buf      bytes.Buffer
	uploadID string
	partNum  int32
	parts    []s3types.CompletedPart
	closed   bool
}

type writerArgs struct {
	contentType  string
	cacheControl string
}

func newWriter(ctx context.Context, svc *Service, key string, args types.OpWrite) *writer {
	return &writer{
		ctx: ctx,
		svc: svc,
		key: key,
		args: writerArgs{
			contentType:  args.ContentType,
			cacheControl: args.CacheControl,
		},
	}
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, serrors.AlreadyClosed(string(types.OperationWrite))
	}
	if err := w.ctx.Err(); err != nil {
		return 0, serrors.FromContext(err)
	}

	n, _ := w.buf.Write(p)
	for int64(w.buf.Len()) >= w.svc.partSize {
		if err := w.flushPart(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// flushPart uploads one full part from the head of the buffer, starting the
// multipart upload on first use.
func (w *writer) flushPart() error {
	if w.uploadID == "" {
		in := &awss3.CreateMultipartUploadInput{
			Bucket: aws.String(w.svc.bucket),
			Key:    aws.String(w.key),
		}
		if w.args.contentType != "" {
			in.ContentType = aws.String(w.args.contentType)
		}
		if w.args.cacheControl != "" {
			in.CacheControl = aws.String(w.args.cacheControl)
		}
		out, err := w.svc.client.CreateMultipartUpload(w.ctx, in)
		if err != nil {
			return mapError(err)
		}
		w.uploadID = aws.ToString(out.UploadId)
	}

	part := w.buf.Next(int(w.svc.partSize))
	w.partNum++
	out, err := w.svc.client.UploadPart(w.ctx, &awss3.UploadPartInput{
		Bucket:     aws.String(w.svc.bucket),
		Key:        aws.String(w.key),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int32(w.partNum),
		Body:       bytes.NewReader(part),
	})
	if err != nil {
		return mapError(err)
	}
	w.parts = append(w.parts, s3types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(w.partNum),
	})
	return nil
}

// Close commits the upload. A small payload becomes one PutObject; a
// multipart upload flushes the tail part and completes.
func (w *writer) Close() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true

	if w.uploadID == "" {
		in := &awss3.PutObjectInput{
			Bucket: aws.String(w.svc.bucket),
			Key:    aws.String(w.key),
			Body:   bytes.NewReader(w.buf.Bytes()),
		}
		if w.args.contentType != "" {
			in.ContentType = aws.String(w.args.contentType)
		}
		if w.args.cacheControl != "" {
			in.CacheControl = aws.String(w.args.cacheControl)
		}
		_, err := w.svc.client.PutObject(w.ctx, in)
		return mapError(err)
	}

	if w.buf.Len() > 0 {
		if err := w.flushTail(); err != nil {
			w.abortUpload()
			return err
		}
	}
	_, err := w.svc.client.CompleteMultipartUpload(w.ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:   aws.String(w.svc.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: w.parts,
		},
	})
	if err != nil {
		w.abortUpload()
		return mapError(err)
	}
	return nil
}

// flushTail uploads whatever remains in the buffer as the last part, which
// may be smaller than the part size.
func (w *writer) flushTail() error {
	w.partNum++
	out, err := w.svc.client.UploadPart(w.ctx, &awss3.UploadPartInput{
		Bucket:     aws.String(w.svc.bucket),
		Key:        aws.String(w.key),
		UploadId:   aws.String(w.uploadID),
		PartNumber: aws.Int32(w.partNum),
		Body:       bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return mapError(err)
	}
	w.buf.Reset()
	w.parts = append(w.parts, s3types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(w.partNum),
	})
	return nil
}

// Abort discards buffered data and tears down any in-flight multipart
// upload. Safe after cancellation.
func (w *writer) Abort() error {
	if w.closed {
		return serrors.AlreadyClosed(string(types.OperationWrite))
	}
	w.closed = true
	w.buf.Reset()
	if w.uploadID != "" {
		return w.abortUpload()
	}
	return nil
}

func (w *writer) abortUpload() error {
	// Use a context that survives cancellation so the bucket is not left
	// with orphaned parts.
	ctx := context.WithoutCancel(w.ctx)
	_, err := w.svc.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.svc.bucket),
		Key:      aws.String(w.key),
		UploadId: aws.String(w.uploadID),
	})
	return mapError(err)
}
