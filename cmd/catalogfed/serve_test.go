package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed"
	"github.com/BaSui01/catalogfed/config"
)

func TestServeCommand_StopsWithContext(t *testing.T) {
	path := writeConfig(t, catalogYAML)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := executeCommand(ctx, "--config", path, "serve", "--watch", "--poll-interval", "50ms")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after the context was cancelled")
	}
}

func TestServeCommand_BadAddress(t *testing.T) {
	path := writeConfig(t, catalogYAML)

	_, err := executeCommand(context.Background(), "--config", path, "serve", "--addr", "127.0.0.1:99999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start HTTP server")
}

func TestManagerConfig(t *testing.T) {
	got := managerConfig(config.ServerConfig{Addr: ":9000", ReadTimeout: 5 * time.Second})
	assert.Equal(t, ":9000", got.Addr)
	assert.Equal(t, 5*time.Second, got.ReadTimeout)
	assert.Equal(t, 60*time.Second, got.WriteTimeout)
	assert.Equal(t, 15*time.Second, got.ShutdownTimeout)
}

func TestAPIMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false
	engine, err := catalogfed.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	assert.Len(t, apiMiddleware(ctx, cfg.Server, engine, zap.NewNop()), 5)

	cfg.Server.RateLimit = 10
	assert.Len(t, apiMiddleware(ctx, cfg.Server, engine, zap.NewNop()), 6)
}
