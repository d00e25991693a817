package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for sitekeeper
type Config struct {
	Scan       ScanConfig       `mapstructure:"scan"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup"`
	Duplicates DuplicatesConfig `mapstructure:"duplicates"`
	Migrate    MigrateConfig    `mapstructure:"migrate"`
}

// ScanConfig controls tree enumeration
type ScanConfig struct {
	ExcludeDirs    []string `mapstructure:"exclude_dirs"`     // exact directory names never descended
	ExcludeGlobs   []string `mapstructure:"exclude_globs"`    // doublestar globs over root-relative paths
	UseIgnoreFiles bool     `mapstructure:"use_ignore_files"` // also honor .gitignore and .git/info/exclude
	Workers        int      `mapstructure:"workers"`          // 0 means runtime.NumCPU()
}

// CleanupConfig controls the interactive cleanup
type CleanupConfig struct {
	BackupPatterns     []string `mapstructure:"backup_patterns"`
	ReportPath         string   `mapstructure:"report_path"`
	ResourceExtensions []string `mapstructure:"resource_extensions"`
	DocumentExtensions []string `mapstructure:"document_extensions"`
}

// DuplicatesConfig controls duplicate grouping
type DuplicatesConfig struct {
	Verify bool `mapstructure:"verify"` // split digest buckets whose normalized text differs
}

// MigrateConfig controls the batch rewriter
type MigrateConfig struct {
	Target        string        `mapstructure:"target"`
	RulesFile     string        `mapstructure:"rules_file"`
	ChangelogPath string        `mapstructure:"changelog_path"`
	Debounce      time.Duration `mapstructure:"debounce"`
}

// DefaultBackupPatterns are matched case-insensitively against file basenames.
var DefaultBackupPatterns = []string{
	"*backup*",
	"*.bak",
	"*.orig",
	"*~",
	"old[-_.]*",
	"*[-_.]old[-_.]*",
	"*[-_.]old",
	"temp[-_.]*",
	"*[-_.]temp[-_.]*",
	"*[-_.]tmp[-_.]*",
	"* copy*",
	"*[-_]copy[-_.]*",
	"*[-_][0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9].*",
	"*[-_][0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9].*",
}

var defaultConfig = Config{
	Scan: ScanConfig{
		ExcludeDirs:    []string{"node_modules", ".git", ".github", ".vscode", ".idea", "vendor"},
		ExcludeGlobs:   []string{},
		UseIgnoreFiles: false,
		Workers:        0,
	},
	Cleanup: CleanupConfig{
		BackupPatterns:     DefaultBackupPatterns,
		ReportPath:         "cleanup-report.json",
		ResourceExtensions: []string{".css", ".js"},
		DocumentExtensions: []string{".html", ".htm"},
	},
	Duplicates: DuplicatesConfig{
		Verify: true,
	},
	Migrate: MigrateConfig{
		Target:        "products",
		RulesFile:     "",
		ChangelogPath: "migration-log.json",
		Debounce:      300 * time.Millisecond,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Scan.ExcludeDirs = append([]string(nil), defaultConfig.Scan.ExcludeDirs...)
	c.Scan.ExcludeGlobs = append([]string(nil), defaultConfig.Scan.ExcludeGlobs...)
	c.Cleanup.BackupPatterns = append([]string(nil), defaultConfig.Cleanup.BackupPatterns...)
	c.Cleanup.ResourceExtensions = append([]string(nil), defaultConfig.Cleanup.ResourceExtensions...)
	c.Cleanup.DocumentExtensions = append([]string(nil), defaultConfig.Cleanup.DocumentExtensions...)
	return &c
}

// FlagBindings maps config keys to command flag names.
type FlagBindings map[string]string

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.exclude_dirs", defaultConfig.Scan.ExcludeDirs)
	v.SetDefault("scan.exclude_globs", defaultConfig.Scan.ExcludeGlobs)
	v.SetDefault("scan.use_ignore_files", defaultConfig.Scan.UseIgnoreFiles)
	v.SetDefault("scan.workers", defaultConfig.Scan.Workers)

	v.SetDefault("cleanup.backup_patterns", defaultConfig.Cleanup.BackupPatterns)
	v.SetDefault("cleanup.report_path", defaultConfig.Cleanup.ReportPath)
	v.SetDefault("cleanup.resource_extensions", defaultConfig.Cleanup.ResourceExtensions)
	v.SetDefault("cleanup.document_extensions", defaultConfig.Cleanup.DocumentExtensions)

	v.SetDefault("duplicates.verify", defaultConfig.Duplicates.Verify)

	v.SetDefault("migrate.target", defaultConfig.Migrate.Target)
	v.SetDefault("migrate.rules_file", defaultConfig.Migrate.RulesFile)
	v.SetDefault("migrate.changelog_path", defaultConfig.Migrate.ChangelogPath)
	v.SetDefault("migrate.debounce", defaultConfig.Migrate.Debounce)
}

// Load reads configuration for the project at root. Sources, lowest priority first:
// built-in defaults, sitekeeper.yaml / .sitekeeper.yaml in root, SITEKEEPER_* environment
// variables, and any flags in fs that were explicitly set.
func Load(root string, fs *pflag.FlagSet, bindings FlagBindings) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SITEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := findConfigFile(root); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: error reading config %s: %v", siteerrors.ErrConfig, path, err)
		}
	}

	if fs != nil {
		for key, flagName := range bindings {
			f := fs.Lookup(flagName)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag --%s: %w", flagName, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshaling config: %v", siteerrors.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the first project config file present in root.
func findConfigFile(root string) string {
	candidates := []string{
		"sitekeeper.yaml",
		"sitekeeper.yml",
		".sitekeeper.yaml",
		".sitekeeper.yml",
		"sitekeeper.toml",
		"sitekeeper.json",
	}
	for _, name := range candidates {
		p := filepath.Join(root, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return fmt.Errorf("%w: scan.workers must be >= 0, got %d", siteerrors.ErrConfig, c.Scan.Workers)
	}
	if strings.TrimSpace(c.Cleanup.ReportPath) == "" {
		return fmt.Errorf("%w: cleanup.report_path must not be empty", siteerrors.ErrConfig)
	}
	if len(c.Cleanup.ResourceExtensions) == 0 {
		return fmt.Errorf("%w: cleanup.resource_extensions must not be empty", siteerrors.ErrConfig)
	}
	if c.Migrate.Debounce < 0 {
		return fmt.Errorf("%w: migrate.debounce must be >= 0, got %s", siteerrors.ErrConfig, c.Migrate.Debounce)
	}
	return nil
}

// ReportFile returns the absolute report path for the project at root.
func (c *Config) ReportFile(root string) string {
	if filepath.IsAbs(c.Cleanup.ReportPath) {
		return c.Cleanup.ReportPath
	}
	return filepath.Join(root, c.Cleanup.ReportPath)
}

// ChangelogFile returns the absolute migration log path for the project at root.
func (c *Config) ChangelogFile(root string) string {
	if filepath.IsAbs(c.Migrate.ChangelogPath) {
		return c.Migrate.ChangelogPath
	}
	return filepath.Join(root, c.Migrate.ChangelogPath)
}
