package daemonrun_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/config"
	"autoposter/internal/daemonrun"
	"autoposter/internal/ingest"
	"autoposter/internal/logging"
	"autoposter/internal/queue"
	"autoposter/internal/testsupport"
)

func TestAssembleWiresDryRunPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithETAMode(config.ETAModeNow))
	rt, err := daemonrun.Assemble(cfg, logging.NewNop(), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	path := testsupport.WriteMedia(t, filepath.Join(cfg.Paths.ContentDir, "acme", "reels", "clip.mp4"), 512)
	out, err := rt.Enqueuer.Enqueue(ctx, path, ingest.Options{Source: queue.SourceManual})
	require.NoError(t, err)
	require.True(t, out.Created)

	res, err := rt.Dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	job := testsupport.MustGetJob(t, rt.Store, out.JobID)
	assert.Equal(t, queue.StatusDone, job.Status)
	assert.Contains(t, job.MediaID, "dryrun-")

	used, err := rt.Quota.UsedToday(ctx, "acme", queue.ContentReels)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestRunRequiresALoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{})
	require.Error(t, err)
}
