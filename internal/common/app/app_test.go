package app

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
)

func TestWithShutdownCancelsOnSignal(t *testing.T) {
	ctx := withShutdown(sizercontext.Background(), syscall.SIGUSR1)
	require.NoError(t, ctx.Err())

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled")
	}
	assert.NotNil(t, ctx.Log)
}
