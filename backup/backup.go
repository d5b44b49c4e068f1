// Package backup stores snapshots in S3 compatible object storage
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kjk/gradebook/atomicfile"
	"github.com/kjk/gradebook/config"
	"github.com/kjk/gradebook/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Client struct {
	Client *minio.Client
	Bucket string
	// prepended to remote names, e.g. "gradebook/"
	Prefix string
}

// Object is a snapshot stored remotely
type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func validateConfig(c *config.Backup) error {
	if c == nil {
		return errors.New("must provide config")
	}
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Access == "" {
		missing = append(missing, "access key")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("backup config is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// New creates a client and checks that the bucket exists
func New(ctx context.Context, c *config.Backup) (*Client, error) {
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		Bucket: c.Bucket,
		Prefix: c.Prefix,
	}, nil
}

// RemotePath returns object name for a snapshot name
func (c *Client) RemotePath(name string) string {
	if c.Prefix == "" {
		return name
	}
	return path.Join(c.Prefix, name)
}

// RemoteName returns default remote name for a local snapshot:
// its file name prefixed with upload time, so names sort by time
func RemoteName(localPath string, t time.Time) string {
	return t.UTC().Format("20060102-150405") + "-" + filepath.Base(localPath)
}

// Upload uploads a local snapshot as remote name
func (c *Client) Upload(ctx context.Context, name string, localPath string) (minio.UploadInfo, error) {
	remotePath := c.RemotePath(name)
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	info, err := c.Client.FPutObject(ctx, c.Bucket, remotePath, localPath, opts)
	if err != nil {
		return info, fmt.Errorf("upload of '%s' as '%s' failed: %w", localPath, remotePath, err)
	}
	log.Event("backup.upload", "remote", remotePath, "size", info.Size)
	return info, nil
}

// Download downloads remote snapshot to localPath. localPath is replaced
// only if the whole download succeeds.
func (c *Client) Download(ctx context.Context, name string, localPath string) error {
	remotePath := c.RemotePath(name)
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	// ensure there's a dir for destination file
	if err = os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	f, err := atomicfile.New(localPath)
	if err != nil {
		return err
	}
	defer f.Abort()
	n, err := io.Copy(f, obj)
	if err != nil {
		return fmt.Errorf("download of '%s' failed: %w", remotePath, err)
	}
	if err = f.Commit(); err != nil {
		return err
	}
	log.Event("backup.download", "remote", remotePath, "size", n)
	return nil
}

// List returns snapshots whose name starts with prefix, oldest first
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    c.RemotePath(prefix),
		Recursive: true,
	}
	if prefix == "" && c.Prefix != "" {
		opts.Prefix = strings.TrimSuffix(c.Prefix, "/") + "/"
	}
	var res []Object
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		o := Object{
			Name:         c.localName(oi.Key),
			Size:         oi.Size,
			LastModified: oi.LastModified,
		}
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LastModified.Before(res[j].LastModified)
	})
	return res, nil
}

// localName strips Prefix from object name
func (c *Client) localName(key string) string {
	if c.Prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(c.Prefix, "/")+"/")
}

// Remove deletes a remote snapshot
func (c *Client) Remove(ctx context.Context, name string) error {
	remotePath := c.RemotePath(name)
	err := c.Client.RemoveObject(ctx, c.Bucket, remotePath, minio.RemoveObjectOptions{})
	if err != nil {
		return err
	}
	log.Event("backup.remove", "remote", remotePath)
	return nil
}
