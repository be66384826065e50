package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/migrations"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add quarantine index", "add_quarantine_index"},
		{"Add-Sync-Runs", "add_sync_runs"},
		{"widen__external  codes", "widen_external_codes"},
		{"v2.tokens", "v2_tokens"},
		{"  padded  ", "padded"},
		{"drop!@#legacy", "droplegacy"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_add_token_index.up.sql":      {Data: []byte("--")},
		"000002_add_token_index.down.sql":    {Data: []byte("--")},
		"000001_create_sync_schema.up.sql":   {Data: []byte("--")},
		"000001_create_sync_schema.down.sql": {Data: []byte("--")},
		"README.md":                          {Data: []byte("notes")},
		"embed.go":                           {Data: []byte("package migrations")},
	}

	got, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: 1, Name: "create_sync_schema"},
		{Version: 2, Name: "add_token_index"},
	}, got)
	assert.Equal(t, "000002_add_token_index", got[1].String())
}

func TestListMigrations_Embedded(t *testing.T) {
	got, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, Migration{Version: 1, Name: "create_sync_schema"}, got[0])
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create sync schema", "")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_sync_schema.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_create_sync_schema.down.sql"), first.DownPath)
	assert.Equal(t, "create sync schema", first.Description)

	second, err := CreateMigration(dir, "Add Quarantine Index", "Index open quarantine records")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)

	up, err := os.ReadFile(second.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "000002 add_quarantine_index")
	assert.Contains(t, string(up), "Index open quarantine records")

	down, err := os.ReadFile(second.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(rollback)")

	listed, err := ListMigrations(os.DirFS(dir))
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreateMigration_InvalidName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestNextVersion_MissingDir(t *testing.T) {
	version, err := NextVersion(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestStatusOf(t *testing.T) {
	available := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	tests := []struct {
		name     string
		current  uint
		dirty    bool
		want     Status
		upToDate bool
	}{
		{"fresh database", 0, false, Status{Current: 0, Latest: 3, Pending: 3}, false},
		{"partially applied", 2, false, Status{Current: 2, Latest: 3, Pending: 1}, false},
		{"current", 3, false, Status{Current: 3, Latest: 3}, true},
		{"dirty", 3, true, Status{Current: 3, Latest: 3, Dirty: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusOf(tt.current, tt.dirty, available)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.upToDate, got.UpToDate())
		})
	}
}
