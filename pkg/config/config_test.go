package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "cleanup-report.json", cfg.Cleanup.ReportPath)
	assert.Equal(t, []string{".css", ".js"}, cfg.Cleanup.ResourceExtensions)
	assert.Contains(t, cfg.Scan.ExcludeDirs, "node_modules")
	assert.False(t, cfg.Scan.UseIgnoreFiles)
	assert.True(t, cfg.Duplicates.Verify)
	assert.Equal(t, "products", cfg.Migrate.Target)
	assert.Equal(t, 300*time.Millisecond, cfg.Migrate.Debounce)
	assert.Equal(t, DefaultBackupPatterns, cfg.Cleanup.BackupPatterns)
}

func TestLoadProjectFile(t *testing.T) {
	root := t.TempDir()
	content := `scan:
  exclude_dirs: [node_modules, drafts]
  workers: 2
cleanup:
  report_path: reports/cleanup.json
migrate:
  target: applications
  debounce: 1s
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "sitekeeper.yaml"), []byte(content), 0o644))

	cfg, err := Load(root, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"node_modules", "drafts"}, cfg.Scan.ExcludeDirs)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, "reports/cleanup.json", cfg.Cleanup.ReportPath)
	assert.Equal(t, "applications", cfg.Migrate.Target)
	assert.Equal(t, time.Second, cfg.Migrate.Debounce)
	assert.True(t, cfg.Duplicates.Verify, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SITEKEEPER_MIGRATE_TARGET", "catalog")

	cfg, err := Load(t.TempDir(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "catalog", cfg.Migrate.Target)
}

func TestLoadFlagOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".sitekeeper.yaml"), []byte("migrate:\n  target: applications\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("target", "", "")
	fs.String("report", "", "")
	require.NoError(t, fs.Parse([]string{"--target", "products"}))

	cfg, err := Load(root, fs, FlagBindings{
		"migrate.target":     "target",
		"cleanup.report_path": "report",
	})
	require.NoError(t, err)

	assert.Equal(t, "products", cfg.Migrate.Target)
	assert.Equal(t, "cleanup-report.json", cfg.Cleanup.ReportPath, "unchanged flags must not override")
}

func TestLoadInvalidFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sitekeeper.yaml"), []byte("scan: [unterminated"), 0o644))

	_, err := Load(root, nil, nil)
	assert.ErrorIs(t, err, siteerrors.ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"negative workers", func(c *Config) { c.Scan.Workers = -1 }, false},
		{"empty report path", func(c *Config) { c.Cleanup.ReportPath = " " }, false},
		{"no resource extensions", func(c *Config) { c.Cleanup.ResourceExtensions = nil }, false},
		{"negative debounce", func(c *Config) { c.Migrate.Debounce = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, siteerrors.ErrConfig)
			}
		})
	}
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	a.Cleanup.BackupPatterns[0] = "mutated"
	b := Default()
	assert.NotEqual(t, "mutated", b.Cleanup.BackupPatterns[0])
}

func TestResolvedPaths(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/site", "cleanup-report.json"), cfg.ReportFile("/site"))
	assert.Equal(t, filepath.Join("/site", "migration-log.json"), cfg.ChangelogFile("/site"))

	cfg.Cleanup.ReportPath = "/tmp/report.json"
	assert.Equal(t, "/tmp/report.json", cfg.ReportFile("/site"))
}
