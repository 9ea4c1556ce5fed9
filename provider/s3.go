package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Provider = (*S3Provider)(nil)

// S3Provider serves s3://bucket/prefix URLs. Connections of one S3 session
// share the client; the session's connection cap bounds concurrent requests.
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Provider loads the default AWS configuration and creates a provider
// for the given bucket and key prefix.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewS3ProviderFromClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3ProviderFromClient wraps an existing client.
func NewS3ProviderFromClient(client *s3.Client, bucket string, prefix string) *S3Provider {
	return &S3Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		info := &fileInfo{name: path.Base(key), isDir: strings.HasSuffix(key, "/")}
		if head.LastModified != nil {
			info.modTime = *head.LastModified
		}
		if head.ContentLength != nil {
			info.size = *head.ContentLength
		}
		return info, nil
	}

	// Not an object; a key prefix with children counts as a directory.
	dirPrefix := key + "/"
	if key == "" {
		dirPrefix = ""
	}
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return &fileInfo{name: path.Base(key), isDir: true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotExist, pth)
}

func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(dirPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &fileInfo{name: name, isDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" || strings.HasSuffix(name, "/") {
				// the directory placeholder itself
				continue
			}
			info := &fileInfo{name: name, size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.modTime = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite streams into the multipart uploader through a pipe. The upload
// result is reported by Close.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, _ FileInfo) (io.WriteCloser, error) {
	key := p.buildKey(pth)
	pr, pw := io.Pipe()
	errChan := make(chan error, 1)

	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &pipeWriter{pw: pw, errChan: errChan, what: "s3 upload"}, nil
}

// Mkdir writes a zero-byte "dir/" placeholder object.
func (p *S3Provider) Mkdir(ctx context.Context, pth string) error {
	key := p.buildKey(pth)
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("failed to write directory placeholder %q: %w", pth, err)
	}
	return nil
}

func (p *S3Provider) Remove(ctx context.Context, pth string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", pth, err)
	}
	return nil
}

// Close is a no-op; the client is shared by the session.
func (p *S3Provider) Close() error { return nil }

// pipeWriter feeds a background consumer (uploader, STOR command) and waits
// for its result on Close.
type pipeWriter struct {
	pw      *io.PipeWriter
	errChan <-chan error
	what    string
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *pipeWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("%s failed: %w", w.what, err)
	}
	return nil
}
