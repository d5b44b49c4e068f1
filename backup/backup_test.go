package backup

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
	"github.com/kjk/gradebook/config"
)

func TestValidateConfig(t *testing.T) {
	assert.Error(t, validateConfig(nil))

	cfg := config.Default().Backup
	err := validateConfig(&cfg)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "endpoint, bucket, access key, secret"), err.Error())

	cfg.Endpoint = "localhost:9000"
	cfg.Bucket = "backups"
	cfg.Access = "key"
	cfg.Secret = "secret"
	assert.NoError(t, validateConfig(&cfg))

	_, err = New(context.Background(), &config.Backup{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestRemotePath(t *testing.T) {
	c := &Client{Prefix: "gradebook/"}
	assert.Equal(t, "gradebook/snap.zst", c.RemotePath("snap.zst"))
	assert.Equal(t, "snap.zst", c.localName("gradebook/snap.zst"))

	c = &Client{}
	assert.Equal(t, "snap.zst", c.RemotePath("snap.zst"))
	assert.Equal(t, "snap.zst", c.localName("snap.zst"))

	tm := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "20240305-140709-snap.zst", RemoteName("/tmp/out/snap.zst", tm))
}
