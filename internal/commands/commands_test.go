package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"kanbanhub/internal/config"
	"kanbanhub/internal/store"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	out := run(t, "version")
	require.Contains(t, out, "kanbanctl 1.2.3")
	require.Contains(t, out, "abc123")
}

func TestMigrateAndSeedAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "kanban.db")
	cfgPath := filepath.Join(dir, "config.json")
	body := `{"database": {"driver": "sqlite", "dsn": "` + dbPath + `"}, "app": {"log_level": "error"}}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	require.Contains(t, run(t, "--config", cfgPath, "migrate"), "up to date")
	require.Contains(t, run(t, "--config", cfgPath, "seed"), "john.doe@example.com")
	// 再次执行不报错
	run(t, "--config", cfgPath, "seed")

	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	st := store.New(db)
	defer st.Close()

	var boards int64
	require.NoError(t, st.DB().Table("boards").Count(&boards).Error)
	require.EqualValues(t, 1, boards)
}
