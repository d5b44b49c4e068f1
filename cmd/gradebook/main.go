package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/kjk/gradebook/config"
	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/school"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var (
	flagConfig  string
	flagDataDir string
	flagVerbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gradebook",
	Short: "Inspect and maintain academic record files",
	Long: `gradebook works on the flat record files of the academic records
application: students, classes, subjects, enrollments and the class roster.

Configuration comes from GRADEBOOK_* environment variables, a .env file
and an optional config file (--config).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagDataDir != "" {
		cfg.Store.DataDir = flagDataDir
	}
	log.Verbose = cfg.Verbose || flagVerbose
	log.Close()
	if cfg.LogDir != "" {
		log.Init(&log.Config{Dir: cfg.LogDir})
	}
	log.Verbosef("data dir: '%s', log dir: '%s'\n", cfg.Store.DataDir, cfg.LogDir)
	return nil
}

func openDB() (*school.DB, error) {
	return school.Open(&cfg.Store)
}

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v any) error {
	d, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(d))
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (yaml, toml, json...)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory with record files (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Errorf("gradebook: %s", err)
		log.Close()
		os.Exit(1)
	}
}
