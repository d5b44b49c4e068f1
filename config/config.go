package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, e.g. GRADEBOOK_DATA_DIR
const EnvPrefix = "GRADEBOOK"

type Config struct {
	Store   Store
	LogDir  string
	Verbose bool
	Backup  Backup
}

// Store configures location of the record files
type Store struct {
	DataDir        string
	StudentFile    string
	ClassFile      string
	SubjectFile    string
	EnrollmentFile string
	RosterFile     string
	// staging file used when rewriting enrollments
	StagingFile string
	// capacity used when loading whole files, 0 means no limit
	MaxRecords int
}

// Backup configures S3 compatible storage for snapshots
type Backup struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Region   string
	Prefix   string
	Insecure bool
}

// Enabled returns true if enough is configured to connect
func (b *Backup) Enabled() bool {
	return b.Endpoint != "" && b.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("STUDENT_FILE", "students.dat")
	v.SetDefault("CLASS_FILE", "classes.dat")
	v.SetDefault("SUBJECT_FILE", "subjects.dat")
	v.SetDefault("ENROLLMENT_FILE", "enrollments.dat")
	v.SetDefault("ROSTER_FILE", "roster.dat")
	v.SetDefault("STAGING_FILE", "")
	v.SetDefault("MAX_RECORDS", 256)
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("VERBOSE", false)

	v.SetDefault("BACKUP_ENDPOINT", "")
	v.SetDefault("BACKUP_ACCESS", "")
	v.SetDefault("BACKUP_SECRET", "")
	v.SetDefault("BACKUP_BUCKET", "")
	v.SetDefault("BACKUP_REGION", "")
	v.SetDefault("BACKUP_PREFIX", "gradebook/")
	v.SetDefault("BACKUP_INSECURE", false)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogDir:  v.GetString("LOG_DIR"),
		Verbose: v.GetBool("VERBOSE"),
	}
	cfg.Store = Store{
		DataDir:        v.GetString("DATA_DIR"),
		StudentFile:    v.GetString("STUDENT_FILE"),
		ClassFile:      v.GetString("CLASS_FILE"),
		SubjectFile:    v.GetString("SUBJECT_FILE"),
		EnrollmentFile: v.GetString("ENROLLMENT_FILE"),
		RosterFile:     v.GetString("ROSTER_FILE"),
		StagingFile:    v.GetString("STAGING_FILE"),
		MaxRecords:     v.GetInt("MAX_RECORDS"),
	}
	cfg.Backup = Backup{
		Endpoint: v.GetString("BACKUP_ENDPOINT"),
		Access:   v.GetString("BACKUP_ACCESS"),
		Secret:   v.GetString("BACKUP_SECRET"),
		Bucket:   v.GetString("BACKUP_BUCKET"),
		Region:   v.GetString("BACKUP_REGION"),
		Prefix:   v.GetString("BACKUP_PREFIX"),
		Insecure: v.GetBool("BACKUP_INSECURE"),
	}
	return cfg
}

// Default returns configuration with default values only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// Load reads configuration from, in order of priority:
// GRADEBOOK_* environment variables, .env file in current directory,
// configuration file at path (optional, any format viper understands,
// keys like data_dir) and defaults.
func Load(path string) (*Config, error) {
	// .env values become env variables but don't override already set ones
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config '%s': %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	s := &c.Store
	if s.DataDir == "" {
		return errors.New("data dir is not set")
	}
	if s.MaxRecords < 0 {
		return fmt.Errorf("max records must be >= 0, is %d", s.MaxRecords)
	}
	names := map[string]string{}
	files := []struct{ key, name string }{
		{"student file", s.StudentFile},
		{"class file", s.ClassFile},
		{"subject file", s.SubjectFile},
		{"enrollment file", s.EnrollmentFile},
		{"roster file", s.RosterFile},
		{"staging file", s.StagingFile},
	}
	for _, f := range files {
		if f.name == "" {
			if f.key == "staging file" {
				continue
			}
			return fmt.Errorf("%s is not set", f.key)
		}
		if strings.ContainsAny(f.name, `/\`) {
			return fmt.Errorf("%s '%s' must be a file name, not a path", f.key, f.name)
		}
		if other, ok := names[f.name]; ok {
			return fmt.Errorf("%s and %s are both '%s'", other, f.key, f.name)
		}
		names[f.name] = f.key
	}
	if s.StagingFile == "" && names[s.EnrollmentFile+".tmp"] != "" {
		return fmt.Errorf("'%s' is used as staging file for '%s'", s.EnrollmentFile+".tmp", s.EnrollmentFile)
	}
	return nil
}
