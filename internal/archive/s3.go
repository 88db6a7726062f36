// Package archive mirrors fetched firmware into an S3 bucket so fleets
// can stage images in their own storage instead of re-pulling them from
// the vendor.
package archive

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fuslink/fuslink/internal/logging"
)

const (
	// multipartThreshold selects between a single PUT and a multipart
	// upload. Firmware images routinely run to several gigabytes, well
	// past what a single PutObject should carry.
	multipartThreshold = 100 * 1024 * 1024

	// partSize is the fixed size of every multipart part except the last.
	partSize = 32 * 1024 * 1024
)

// S3Mirror uploads firmware files to a bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logging.Logger
}

// Options configures the mirror target. AccessKey/SecretKey are optional;
// when empty the default AWS credential chain applies.
type Options struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Mirror builds a mirror. The shared HTTP client is reused so the
// upload rides the same tuned transport as the vendor traffic.
func NewS3Mirror(ctx context.Context, opts Options, httpClient *nethttp.Client, log *logging.Logger) (*S3Mirror, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 mirror: %w", err)
	}

	return &S3Mirror{
		client: s3.NewFromConfig(cfg),
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		log:    log,
	}, nil
}

// Upload stores a local firmware file under prefix/filename. Files past
// the multipart threshold go up in fixed-size parts so one dropped
// connection does not restart a multi-gigabyte transfer.
func (m *S3Mirror) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3 mirror: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3 mirror: %w", err)
	}

	key := path.Join(m.prefix, path.Base(localPath))
	m.log.Info().
		Str("bucket", m.bucket).
		Str("key", key).
		Int64("size", info.Size()).
		Msg("mirroring firmware to S3")

	if info.Size() < multipartThreshold {
		return m.uploadSinglePart(ctx, f, key, info.Size())
	}
	return m.uploadMultipart(ctx, f, key, info.Size())
}

func (m *S3Mirror) uploadSinglePart(ctx context.Context, f *os.File, key string, size int64) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3 mirror: upload %s: %w", key, err)
	}
	return nil
}

func (m *S3Mirror) uploadMultipart(ctx context.Context, f *os.File, key string, size int64) (err error) {
	create, err := m.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 mirror: create multipart upload for %s: %w", key, err)
	}
	uploadID := create.UploadId

	defer func() {
		if err != nil {
			m.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(m.bucket),
				Key:      aws.String(key),
				UploadId: uploadID,
			})
		}
	}()

	total := partCount(size, partSize)
	completed := make([]types.CompletedPart, 0, total)
	for part := int32(1); int64(part) <= total; part++ {
		offset, length := partRange(size, partSize, int64(part))
		m.log.Debug().
			Str("key", key).
			Int32("part", part).
			Int64("of", total).
			Msg("uploading part")

		resp, err := m.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(m.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(part),
			Body:          io.NewSectionReader(f, offset, length),
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			return fmt.Errorf("s3 mirror: upload %s part %d/%d: %w", key, part, total, err)
		}
		completed = append(completed, types.CompletedPart{
			ETag:       resp.ETag,
			PartNumber: aws.Int32(part),
		})
	}

	_, err = m.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(m.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("s3 mirror: complete multipart upload for %s: %w", key, err)
	}
	return nil
}

// partCount is the number of fixed-size parts needed to cover size bytes.
func partCount(size, partSize int64) int64 {
	return (size + partSize - 1) / partSize
}

// partRange gives the byte offset and length of the 1-based part. The
// last part carries whatever remains.
func partRange(size, partSize, part int64) (offset, length int64) {
	offset = (part - 1) * partSize
	length = partSize
	if offset+length > size {
		length = size - offset
	}
	return offset, length
}
