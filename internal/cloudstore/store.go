// Package cloudstore adapts an S3-compatible bucket into the "ubiquitous
// container" the Reconciler treats as the cloud side of synchronization.
package cloudstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ubisync/syncd/internal/config"
	"github.com/ubisync/syncd/internal/reconcile"
)

const (
	trashSegment = ".trash/"

	// metaConflict marks an object as carrying an unresolved concurrent
	// version the orchestrator must collapse before the reconciler will
	// compare it again.
	metaConflict = "ubisync-conflict"
)

// Store lists, uploads, downloads, and trashes objects in a single bucket
// prefix, and its parallel trash sub-prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string

	downloadedMu sync.Mutex
	downloaded   map[string]string // key -> ETag last confirmed downloaded

	errMu        sync.Mutex
	downloadErrs map[string]error // key -> last GetObject/HeadObject failure
	uploadErrs   map[string]error // key -> last PutObject failure
}

// New builds a Store from AccessKey/SecretKey credentials and region/
// endpoint settings carried in cfg; it performs no network calls itself.
func New(ctx context.Context, cfg *config.Config, accessKey, secretKey string) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.CloudRegion))
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.CloudEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CloudEndpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:       client,
		bucket:       cfg.CloudBucket,
		prefix:       strings.TrimSuffix(cfg.CloudPrefix, "/"),
		downloaded:   make(map[string]string),
		downloadErrs: make(map[string]error),
		uploadErrs:   make(map[string]error),
	}, nil
}

func (s *Store) livePrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Store) trashPrefix() string {
	return s.livePrefix() + trashSegment
}

// Snapshot lists every object under the configured prefix, including its
// trash sub-prefix, and builds the CloudSet the Reconciler compares
// against. Map keys are the full S3 object key, matching CloudSet's
// contract that keys are the cloud layer's own object identifier.
func (s *Store) Snapshot(ctx context.Context) (reconcile.CloudSet, error) {
	set := make(reconcile.CloudSet)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: aws.String(s.livePrefix()),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			inTrash := strings.HasPrefix(key, s.trashPrefix())
			name := s.nameFromKey(key, inTrash)
			if name == "" {
				continue
			}

			item := reconcile.CloudItem{
				Name:             name,
				URL:              key,
				Size:             aws.ToInt64(obj.Size),
				ContentType:      reconcile.DetectContentType(name, nil),
				CreatedAt:        aws.ToTime(obj.LastModified),
				ModifiedAt:       aws.ToTime(obj.LastModified),
				IsInTrash:        inTrash,
				IsDownloaded:     s.isDownloaded(key, aws.ToString(obj.ETag)),
				DownloadingError: s.downloadErr(key),
				UploadingError:   s.uploadErr(key),
			}
			set[key] = item
		}
	}

	if err := s.annotateConflicts(ctx, set); err != nil {
		return nil, err
	}

	return set, nil
}

// nameFromKey strips the store's live or trash prefix from key, leaving
// the logical file name both sides of the reconciler compare on. Trashed
// keys carry a "<unix-nanos>_" disambiguating segment after the trash
// prefix, which is also stripped.
func (s *Store) nameFromKey(key string, inTrash bool) string {
	if inTrash {
		rest := strings.TrimPrefix(key, s.trashPrefix())
		if idx := strings.IndexByte(rest, '_'); idx >= 0 {
			return rest[idx+1:]
		}
		return rest
	}
	return strings.TrimPrefix(key, s.livePrefix())
}

// annotateConflicts fills in HasUnresolvedConflicts by reading object
// metadata for live, non-trashed entries. S3 has no native multi-writer
// conflict concept, so MarkConflict records one as a custom metadata
// header; this just surfaces it.
func (s *Store) annotateConflicts(ctx context.Context, set reconcile.CloudSet) error {
	for key, item := range set {
		if item.IsInTrash {
			continue
		}
		head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			s.recordDownloadErr(key, fmt.Errorf("head %s: %w", item.Name, err))
			continue
		}
		s.recordDownloadErr(key, nil)
		if head.Metadata[metaConflict] == "true" {
			item.HasUnresolvedConflicts = true
			set[key] = item
		}
	}
	return nil
}

func (s *Store) isDownloaded(key, etag string) bool {
	s.downloadedMu.Lock()
	defer s.downloadedMu.Unlock()
	return s.downloaded[key] == etag && etag != ""
}

// recordDownloadErr tracks the last GetObject/HeadObject failure for key, or
// clears it on a nil err following a successful retrieval.
func (s *Store) recordDownloadErr(key string, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if err != nil {
		s.downloadErrs[key] = err
	} else {
		delete(s.downloadErrs, key)
	}
}

// recordUploadErr tracks the last PutObject failure for key, or clears it on
// a nil err following a successful upload.
func (s *Store) recordUploadErr(key string, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if err != nil {
		s.uploadErrs[key] = err
	} else {
		delete(s.uploadErrs, key)
	}
}

func (s *Store) downloadErr(key string) error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.downloadErrs[key]
}

func (s *Store) uploadErr(key string) error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.uploadErrs[key]
}

// Download fetches an object's bytes for StartDownloading. On success the
// item's key is marked downloaded so the next Snapshot reports
// IsDownloaded=true and the reconciler can graduate it to CreateLocal/
// UpdateLocal.
func (s *Store) Download(ctx context.Context, item reconcile.CloudItem) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &item.URL,
	})
	if err != nil {
		wrapped := fmt.Errorf("download %s: %w", item.Name, err)
		s.recordDownloadErr(item.URL, wrapped)
		return nil, wrapped
	}
	s.recordDownloadErr(item.URL, nil)

	s.downloadedMu.Lock()
	s.downloaded[item.URL] = aws.ToString(resp.ETag)
	s.downloadedMu.Unlock()

	return resp.Body, nil
}

// Upload writes a local file's bytes under the live prefix, creating or
// overwriting the cloud object.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (reconcile.CloudItem, error) {
	key := s.livePrefix() + name
	resp, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		wrapped := fmt.Errorf("upload %s: %w", name, err)
		s.recordUploadErr(key, wrapped)
		return reconcile.CloudItem{}, wrapped
	}
	s.recordUploadErr(key, nil)

	now := time.Now()
	s.downloadedMu.Lock()
	s.downloaded[key] = aws.ToString(resp.ETag)
	s.downloadedMu.Unlock()

	return reconcile.NewCloudItem(name, key, size, contentType, now, now), nil
}

// Trash moves a live object to the trash sub-prefix rather than deleting
// it outright, mirroring the cloud container's own trash tier. The
// destination key is disambiguated with the current time so repeated
// trashings of the same name don't collide.
func (s *Store) Trash(ctx context.Context, item reconcile.CloudItem) error {
	destKey := fmt.Sprintf("%s%d_%s", s.trashPrefix(), time.Now().UnixNano(), item.Name)
	copySource := path.Join(s.bucket, item.URL)

	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &s.bucket,
		CopySource: &copySource,
		Key:        &destKey,
	}); err != nil {
		return fmt.Errorf("copy %s to trash: %w", item.Name, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &item.URL,
	}); err != nil {
		return fmt.Errorf("delete %s after trashing: %w", item.Name, err)
	}

	slog.Info("cloudstore trashed object", "name", item.Name, "from", item.URL, "to", destKey)
	return nil
}

// PermanentlyDelete removes key outright, used to purge a stale trash
// entry before a newer one replaces it under the same name.
func (s *Store) PermanentlyDelete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("permanently delete %s: %w", key, err)
	}
	return nil
}

// MarkConflict flags key as carrying an unresolved concurrent version.
func (s *Store) MarkConflict(ctx context.Context, key string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}
	meta := head.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	meta[metaConflict] = "true"

	copySource := path.Join(s.bucket, key)
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            &s.bucket,
		CopySource:        &copySource,
		Key:               &key,
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	return err
}

// ResolveConflict clears the conflict marker set by MarkConflict, once the
// orchestrator has collapsed the concurrent version history.
func (s *Store) ResolveConflict(ctx context.Context, key string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}
	meta := head.Metadata
	delete(meta, metaConflict)

	copySource := path.Join(s.bucket, key)
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            &s.bucket,
		CopySource:        &copySource,
		Key:               &key,
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	return err
}
