package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kjk/gradebook/backup"
	"github.com/kjk/gradebook/config"
	"github.com/spf13/cobra"
)

var flagTimeout time.Duration

func newBackupClient(cmd *cobra.Command) (*backup.Client, context.Context, context.CancelFunc, error) {
	if !cfg.Backup.Enabled() {
		return nil, nil, nil, fmt.Errorf("backup is not configured, set %s_BACKUP_ENDPOINT and %s_BACKUP_BUCKET", config.EnvPrefix, config.EnvPrefix)
	}
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, flagTimeout)
	c, err := backup.New(ctx, &cfg.Backup)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, cancel, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Store snapshots in S3 compatible storage",
}

var backupPushCmd = &cobra.Command{
	Use:   "push [snapshot] [remote name]",
	Short: "Upload a snapshot",
	Long: `Uploads a snapshot file. Without arguments creates a new zstd compressed
snapshot of the data dir and uploads it. Remote name defaults to the
file name prefixed with current time.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newBackupClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		var path string
		if len(args) > 0 {
			path = args[0]
		} else {
			dir, err := os.MkdirTemp("", "gradebook-backup-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			path = filepath.Join(dir, "snapshot.zst")
			if _, err = createSnapshot(path); err != nil {
				return err
			}
		}
		name := backup.RemoteName(path, time.Now())
		if len(args) > 1 {
			name = args[1]
		}
		info, err := c.Upload(ctx, name, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", c.RemotePath(name), info.Size)
		return nil
	},
}

var backupPullCmd = &cobra.Command{
	Use:   "pull <remote name> <local file>",
	Short: "Download a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newBackupClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		return c.Download(ctx, args[0], args[1])
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List uploaded snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newBackupClient(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		objects, err := c.List(ctx, prefix)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), objects)
	},
}

func init() {
	backupCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "timeout for talking to storage")
	backupCmd.AddCommand(backupPushCmd, backupPullCmd, backupListCmd)
	rootCmd.AddCommand(backupCmd)
}
