package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ensure interface is implemented
var _ Provider = (*RemoteProvider)(nil)

// Scheme is the URI scheme of the remote data store.
const Scheme = "data"

// SplitURI splits a path into its scheme and the remainder.
// ok is false when the path carries no "scheme://" prefix.
func SplitURI(p string) (scheme, rest string, ok bool) {
	scheme, rest, ok = strings.Cut(p, "://")
	if !ok {
		return "", p, false
	}
	return scheme, rest, true
}

// Base returns the final path element of a local path or remote URI.
func Base(p string) string {
	_, rest, _ := SplitURI(p)
	return path.Base(strings.TrimSuffix(rest, "/"))
}

// Join appends name as a child of the directory URI dir.
func Join(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

type remoteFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *remoteFileInfo) Name() string       { return f.name }
func (f *remoteFileInfo) Size() int64        { return f.size }
func (f *remoteFileInfo) IsDir() bool        { return f.isDir }
func (f *remoteFileInfo) ModTime() time.Time { return f.modTime }

// RemoteProvider implements the Provider interface for the data:// object
// store, backed by an S3-compatible bucket. Paths may be given as bare keys
// or full data:// URIs; both address the same objects.
type RemoteProvider struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

// NewRemoteProvider creates a RemoteProvider on the given bucket, using the
// default AWS credential and region chain.
func NewRemoteProvider(ctx context.Context, bucket string) (*RemoteProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &RemoteProvider{
		client:   client,
		bucket:   bucket,
		uploader: manager.NewUploader(client),
	}, nil
}

// buildKey strips the URI scheme and leading slashes to obtain the object key.
func (p *RemoteProvider) buildKey(pth string) string {
	_, rest, _ := SplitURI(pth)
	return strings.TrimPrefix(rest, "/")
}

// Stat returns the FileInfo for the given path. An object with the exact key
// is a file; a key that only exists as a prefix of other objects is a
// directory; anything else is ErrNotFound.
func (p *RemoteProvider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	// exact match
	headOut, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})

	if err == nil {
		var modTime time.Time
		if headOut.LastModified != nil {
			modTime = *headOut.LastModified
		}
		var size int64
		if headOut.ContentLength != nil {
			size = *headOut.ContentLength
		}

		return &remoteFileInfo{
			name:    path.Base(key),
			size:    size,
			isDir:   strings.HasSuffix(key, "/"),
			modTime: modTime,
		}, nil
	}

	// maybe a directory? Let's check prefix
	dirPrefix := key + "/"
	if key == "" {
		dirPrefix = ""
	}

	listOut, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})

	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}

	if len(listOut.Contents) > 0 || len(listOut.CommonPrefixes) > 0 {
		return &remoteFileInfo{
			name:  path.Base(key),
			isDir: true,
		}, nil
	}

	return nil, ErrNotFound
}

// List returns the contents of the given directory.
func (p *RemoteProvider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	var continuationToken *string

	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		// Common prefixes are directories
		for _, cp := range out.CommonPrefixes {
			name := strings.TrimPrefix(*cp.Prefix, dirPrefix)
			infos = append(infos, &remoteFileInfo{
				name:  strings.TrimSuffix(name, "/"),
				isDir: true,
			})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(*obj.Key, dirPrefix)
			if name == "" { // sometimes the dir itself is in the results
				continue
			}
			isDir := strings.HasSuffix(name, "/")
			if isDir {
				name = strings.TrimSuffix(name, "/")
			}

			var modTime time.Time
			if obj.LastModified != nil {
				modTime = *obj.LastModified
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}

			infos = append(infos, &remoteFileInfo{
				name:    name,
				size:    size,
				isDir:   isDir,
				modTime: modTime,
			})
		}

		if out.IsTruncated != nil && *out.IsTruncated {
			continuationToken = out.NextContinuationToken
		} else {
			break
		}
	}

	return infos, nil
}

// OpenRead opens an object for streaming reads.
func (p *RemoteProvider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	key := p.buildKey(pth)
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite opens an object for streaming writes. The write is streamed to
// the bucket through a pipe; the upload result is reported from Close.
func (p *RemoteProvider) OpenWrite(ctx context.Context, pth string, metadata FileInfo) (io.WriteCloser, error) {
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

	return &asyncRemoteWriter{
		pw:      pw,
		errChan: errChan,
	}, nil
}

type asyncRemoteWriter struct {
	pw      *io.PipeWriter
	errChan <-chan error
}

func (w *asyncRemoteWriter) Write(p []byte) (n int, err error) {
	return w.pw.Write(p)
}

func (w *asyncRemoteWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	// Wait for upload to complete
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
