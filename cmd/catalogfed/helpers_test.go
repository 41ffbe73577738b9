package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const catalogYAML = `
metrics:
  enabled: false
log:
  level: error
  output_paths: [stderr]
server:
  addr: 127.0.0.1:0
sources:
  - id: north
    type: memory
    records:
      - id: n-1
        title: Harbour survey
        effective: 2024-03-01T00:00:00Z
      - id: n-2
        title: Forest cover
        effective: 2024-01-01T00:00:00Z
  - id: south
    type: memory
    records:
      - id: s-1
        title: Harbour depth
        effective: 2024-02-01T00:00:00Z
  - id: archive
    type: memory
    disabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogfed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func executeCommand(ctx context.Context, args ...string) (string, error) {
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}
