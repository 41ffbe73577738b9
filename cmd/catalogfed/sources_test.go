package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/catalogfed/config"
)

func TestSourcesCommand_Table(t *testing.T) {
	path := writeConfig(t, catalogYAML)

	output, err := executeCommand(context.Background(), "--config", path, "sources")
	require.NoError(t, err)
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "ENABLED")
	assert.Contains(t, output, "north")
	assert.Contains(t, output, "2 records")
	assert.Contains(t, output, "archive")
}

func TestSourcesCommand_JSONWithCheck(t *testing.T) {
	path := writeConfig(t, catalogYAML)

	output, err := executeCommand(context.Background(), "--config", path, "sources", "--json", "--check")
	require.NoError(t, err)

	var entries []sourceEntry
	require.NoError(t, json.Unmarshal([]byte(output), &entries))
	require.Len(t, entries, 3)

	byID := map[string]sourceEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, "ok", byID["north"].Status)
	assert.Equal(t, "ok", byID["south"].Status)
	assert.Equal(t, "disabled", byID["archive"].Status)
	assert.True(t, byID["archive"].Disabled)
}

func TestSourcesCommand_NoSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	output, err := executeCommand(context.Background(), "--config", path, "sources")
	require.NoError(t, err)
	assert.Contains(t, output, "No sources configured.")
}

func TestSourceTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SourceConfig
		want string
	}{
		{name: "http", cfg: config.SourceConfig{Type: config.SourceTypeHTTP, URL: "https://catalog.example"}, want: "https://catalog.example"},
		{name: "sql hides dsn", cfg: config.SourceConfig{Type: config.SourceTypeSQL, Driver: "postgres", DSN: "postgres://user:secret@db"}, want: "postgres"},
		{name: "redis", cfg: config.SourceConfig{Type: config.SourceTypeRedis, Addr: "localhost:6379"}, want: "localhost:6379"},
		{name: "memory", cfg: config.SourceConfig{Type: config.SourceTypeMemory, Records: make([]config.RecordConfig, 4)}, want: "4 records"},
		{name: "unknown", cfg: config.SourceConfig{Type: "ftp"}, want: "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceTarget(tt.cfg))
		})
	}
}
