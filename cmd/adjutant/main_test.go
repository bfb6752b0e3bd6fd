package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfig = `
quota:
  sizes:
    small:
      compute:
        ram: 65536
  services:
    "*": [compute]
store:
  driver: %s
  path: %s
`

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "adjutant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--config", path, "--log-level", "error"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func Test_Commands(t *testing.T) {
	memoryConfig := fmt.Sprintf(testConfig, "memory", "")

	tests := []struct {
		name    string
		args    []string
		config  string
		want    string
		wantErr bool
	}{
		{
			name:   "validate config",
			args:   []string{"validate-config"},
			config: memoryConfig,
			want:   "is valid",
		},
		{
			name:    "invalid config",
			args:    []string{"validate-config"},
			config:  fmt.Sprintf(testConfig, "postgres", ""),
			wantErr: true,
		},
		{
			name:   "status",
			args:   []string{"status"},
			config: memoryConfig,
			want:   `"error_notifications": []`,
		},
		{
			name:   "purge tokens",
			args:   []string{"tokens", "purge"},
			config: memoryConfig,
			want:   "deleted 0 expired tokens",
		},
		{
			name:    "cancel unknown task",
			args:    []string{"tasks", "cancel", "does-not-exist"},
			config:  memoryConfig,
			wantErr: true,
		},
		{
			name:    "memory store has no migrations",
			args:    []string{"migrate"},
			config:  memoryConfig,
			wantErr: true,
		},
		{
			name:   "list tasks",
			args:   []string{"tasks", "list", "--completed=false"},
			config: memoryConfig,
			want:   "[]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.config, tt.args...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Contains(t, out, tt.want)
		})
	}
}

func Test_Migrate_Sqlite(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	db := filepath.Join(t.TempDir(), "adjutant.db")
	config := fmt.Sprintf(testConfig, "sqlite", db)

	_, err := run(t, config, "migrate")
	require.NoError(t, err)

	// Running again is a no-op
	_, err = run(t, config, "migrate")
	require.NoError(t, err)

	out, err := run(t, config, "notifications", "list", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "[]")
}
