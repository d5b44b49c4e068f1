package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/school"
	"github.com/kjk/gradebook/snapshot"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

// createSnapshot writes snapshot of the data dir to path
func createSnapshot(path string) (*snapshot.Snapshot, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	s, err := snapshot.Collect(db.DataDir, db.SnapshotFiles())
	if err != nil {
		return nil, err
	}
	if err = s.WriteFile(path); err != nil {
		return nil, err
	}
	return s, nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <file>",
	Short: "Save all record files into a single file",
	Long: `Saves all record files into a single snapshot file. If the file name ends
with .zst it's compressed with zstd, with .br it's compressed with brotli.
Files with partial records are refused, run check --repair first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createSnapshot(args[0])
		if err != nil {
			return err
		}
		for _, e := range s.Entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", e.Path, e.Size, e.Sha1)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace record files with files from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := snapshot.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err = s.Restore(cfg.Store.DataDir); err != nil {
			return err
		}
		log.Logf("restored %d files into '%s'\n", len(s.Entries), cfg.Store.DataDir)
		return nil
	},
}

// dumpAsJSON returns JSON of all records of a data dir or a snapshot
func dumpAsJSON(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !st.IsDir() {
		s, err := snapshot.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dir, err = os.MkdirTemp("", "gradebook-diff-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		if err = s.Restore(dir); err != nil {
			return nil, err
		}
	}
	storeCfg := cfg.Store
	storeCfg.DataDir = dir
	db, err := school.Open(&storeCfg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, name := range entityNames {
		v, err := loadEntity(db, name, 0)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%s:\n", name)
		if err = writeJSON(&buf, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// diffDumps returns unified diff of records in a and b, empty if they are the same
func diffDumps(a, b string) (string, error) {
	dataA, err := dumpAsJSON(a)
	if err != nil {
		return "", err
	}
	dataB, err := dumpAsJSON(b)
	if err != nil {
		return "", err
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(dataA)),
		B:        difflib.SplitLines(string(dataB)),
		FromFile: a,
		ToFile:   b,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

var diffCmd = &cobra.Command{
	Use:   "diff <a> <b>",
	Short: "Show differences between records of two snapshots or data dirs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := diffDumps(args[0], args[1])
		if err != nil {
			return err
		}
		if s == "" {
			log.Logf("no differences\n")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd, restoreCmd, diffCmd)
}
