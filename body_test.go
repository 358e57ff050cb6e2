package sluice_test

import (
	"context"
	"testing"
	"time"

	"github.com/sagarc03/sluice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody_ResolvesOnce(t *testing.T) {
	body, resolve := sluice.NewBody()

	select {
	case <-body.Done():
		t.Fatal("body resolved before resolve was called")
	default:
	}

	resolve("first")
	resolve("second")

	text, err := body.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestBody_WaitUnblocksOnResolve(t *testing.T) {
	body, resolve := sluice.NewBody()

	go func() {
		time.Sleep(10 * time.Millisecond)
		resolve("late")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	text, err := body.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", text)
}

func TestBody_WaitContextDone(t *testing.T) {
	body, _ := sluice.NewBody()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := body.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBody_ResolvedWinsOverCancelledContext(t *testing.T) {
	body, resolve := sluice.NewBody()
	resolve("partial")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, err := body.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", text)
}
