package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"go-dataport/internal/features/exports"
)

type fakeExportBackend struct {
	mu sync.Mutex

	job         exports.ExportJob
	script      []exports.ExportStatus
	cursor      int
	starts      int
	downloads   int
	downloadErr error
}

func newFakeExportBackend() *fakeExportBackend {
	return &fakeExportBackend{
		job: exports.ExportJob{ID: primitive.NewObjectID()},
		script: []exports.ExportStatus{
			exports.ExportStatusPending,
			exports.ExportStatusProcessing,
			exports.ExportStatusReady,
		},
	}
}

func (b *fakeExportBackend) snapshot(status exports.ExportStatus) exports.ExportJob {
	j := b.job
	j.Status = status
	if status == exports.ExportStatusReady {
		j.DownloadURL = "/api/export/download/tok-123"
	}
	return j
}

func (b *fakeExportBackend) Categories(ctx context.Context) ([]exports.Category, error) {
	return exports.Registry, nil
}

func (b *fakeExportBackend) StartExport(ctx context.Context, categories []string, privacy exports.ExportPrivacy) (exports.ExportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	b.job.Categories = categories
	b.job.Privacy = privacy
	b.cursor = 0
	return b.snapshot(exports.ExportStatusPending), nil
}

func (b *fakeExportBackend) FetchExport(ctx context.Context, id string) (exports.ExportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.script[b.cursor]
	if b.cursor < len(b.script)-1 {
		b.cursor++
	}
	return b.snapshot(status), nil
}

func (b *fakeExportBackend) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads++
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	return io.NopCloser(strings.NewReader("PK\x03\x04")), nil
}

func newTestExportFlow(t *testing.T, backend ExportBackend) *ExportFlow {
	t.Helper()
	flow, err := NewExportFlow(backend, ExportFlowConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	return flow
}

func TestExportFlowHappyPath(t *testing.T) {
	backend := newFakeExportBackend()
	flow := newTestExportFlow(t, backend)
	ctx := context.Background()

	assert.Equal(t, ExportStateSelect, flow.State())
	require.NoError(t, flow.SelectCategories([]string{"residents", "leases"}))
	assert.True(t, flow.NeedsPrivacyOptions(), "residents contain personal data")
	require.NoError(t, flow.SetPrivacy(exports.ExportPrivacy{MaskEmails: true}))

	require.NoError(t, flow.Start(ctx))
	assert.Equal(t, ExportStateComplete, flow.State())

	job, ok := flow.Job()
	require.True(t, ok)
	assert.Equal(t, exports.ExportStatusReady, job.Status)
	assert.NotEmpty(t, job.DownloadURL)

	backend.mu.Lock()
	assert.True(t, backend.job.Privacy.MaskEmails)
	backend.mu.Unlock()

	rc, err := flow.Download(ctx)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, 1, backend.downloads)

	job, _ = flow.Job()
	assert.Equal(t, exports.ExportStatusDownloaded, job.Status)
}

func TestExportFlowPrivacyOnlyForPersonalData(t *testing.T) {
	flow := newTestExportFlow(t, newFakeExportBackend())
	require.NoError(t, flow.SelectCategories([]string{"buildings", "leases"}))
	assert.False(t, flow.NeedsPrivacyOptions())
}

func TestExportFlowSelectionValidation(t *testing.T) {
	flow := newTestExportFlow(t, newFakeExportBackend())

	assert.Error(t, flow.SelectCategories(nil), "at least one category required")
	assert.Error(t, flow.SelectCategories([]string{"unicorns"}), "unknown category")
	assert.Error(t, flow.Start(context.Background()), "cannot start with nothing selected")
}

func TestExportFlowBuildFailure(t *testing.T) {
	backend := newFakeExportBackend()
	backend.script = []exports.ExportStatus{
		exports.ExportStatusPending,
		exports.ExportStatusFailed,
	}
	backend.job.FailureReason = "disk full"
	flow := newTestExportFlow(t, backend)

	require.NoError(t, flow.SelectCategories([]string{"buildings"}))
	err := flow.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotEqual(t, ExportStateComplete, flow.State())

	_, err = flow.Download(context.Background())
	assert.Error(t, err, "no archive to download after a failed build")
}

func TestExportFlowDownloadGuards(t *testing.T) {
	flow := newTestExportFlow(t, newFakeExportBackend())
	_, err := flow.Download(context.Background())
	assert.Error(t, err, "download before the build finishes")
}

func TestExportFlowDownloadFlipsBeforeFetchAndRevertsOnError(t *testing.T) {
	backend := newFakeExportBackend()
	backend.downloadErr = fmt.Errorf("connection reset")

	var seen []exports.ExportStatus
	flow, err := NewExportFlow(backend, ExportFlowConfig{
		PollInterval: 10 * time.Millisecond,
		OnChange: func(state ExportState, j exports.ExportJob) {
			if state == ExportStateComplete {
				seen = append(seen, j.Status)
			}
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, flow.SelectCategories([]string{"buildings"}))
	require.NoError(t, flow.Start(ctx))
	seen = nil

	_, err = flow.Download(ctx)
	require.Error(t, err)
	assert.Equal(t,
		[]exports.ExportStatus{exports.ExportStatusDownloaded, exports.ExportStatusReady},
		seen, "the snapshot flips before the fetch and reverts when it fails")
	job, _ := flow.Job()
	assert.Equal(t, exports.ExportStatusReady, job.Status)

	backend.mu.Lock()
	backend.downloadErr = nil
	backend.mu.Unlock()

	rc, err := flow.Download(ctx)
	require.NoError(t, err)
	defer rc.Close()
	job, _ = flow.Job()
	assert.Equal(t, exports.ExportStatusDownloaded, job.Status)
}

func TestExportFlowStartNewResets(t *testing.T) {
	backend := newFakeExportBackend()
	flow := newTestExportFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectCategories([]string{"buildings"}))
	require.NoError(t, flow.Start(ctx))
	require.Equal(t, ExportStateComplete, flow.State())

	flow.StartNew()
	assert.Equal(t, ExportStateSelect, flow.State())
	assert.Empty(t, flow.Selected())
	_, ok := flow.Job()
	assert.False(t, ok)

	// The reset flow can run a second export from scratch.
	require.NoError(t, flow.SelectCategories([]string{"work_orders"}))
	require.NoError(t, flow.Start(ctx))
	assert.Equal(t, 2, backend.starts)
}

func TestExportFlowLocksSelectionWhileExporting(t *testing.T) {
	backend := newFakeExportBackend()
	// Never reaches a terminal status on its own.
	backend.script = []exports.ExportStatus{exports.ExportStatusProcessing}
	flow := newTestExportFlow(t, backend)

	require.NoError(t, flow.SelectCategories([]string{"buildings"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- flow.Start(ctx) }()

	waitFor(t, func() bool { return flow.State() == ExportStateExporting })
	assert.Error(t, flow.SelectCategories([]string{"leases"}))
	assert.Error(t, flow.SetPrivacy(exports.ExportPrivacy{}))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after cancellation")
	}
}
