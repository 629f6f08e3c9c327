package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundManager(t *testing.T) {
	bm := NewBackgroundManager(nil)
	defer bm.Close()

	release := make(chan struct{})
	okID := bm.Go(JobSuggest, func(context.Context) error {
		<-release
		return nil
	})
	failID := bm.Go(JobSummarize, func(context.Context) error {
		<-release
		return errors.New("boom")
	})
	assert.NotEqual(t, okID, failID)
	assert.Equal(t, 2, bm.Running())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bm.Wait(ctx))

	assert.Equal(t, 0, bm.Running())
	assert.Equal(t, 2, bm.Prune())
	assert.Equal(t, 0, bm.Prune())
}

func TestBackgroundManagerWaitTimeout(t *testing.T) {
	bm := NewBackgroundManager(nil)

	bm.Go(JobSuggest, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bm.Wait(ctx), context.DeadlineExceeded)

	// Close cancels the shared context and waits for the job.
	bm.Close()
	assert.Equal(t, 0, bm.Running())
}

func TestBackgroundManagerAfterClose(t *testing.T) {
	bm := NewBackgroundManager(nil)
	bm.Close()

	ran := false
	id := bm.Go(JobSuggest, func(context.Context) error {
		ran = true
		return nil
	})
	assert.Empty(t, id)
	assert.False(t, ran)
	require.NoError(t, bm.Wait(context.Background()))
}
