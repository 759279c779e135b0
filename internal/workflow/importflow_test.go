package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"go-dataport/internal/features/imports"
)

// fakeImportBackend plays back scripted status sequences: one for the
// validation phase after Upload, one for the commit phase after
// Approve or Retry. The last status in a script repeats forever.
type fakeImportBackend struct {
	mu sync.Mutex

	job            imports.ImportJob
	validateScript []imports.ImportStatus
	commitScript   []imports.ImportStatus
	script         []imports.ImportStatus
	cursor         int

	uploadErr   error
	uploads     int
	approvals   int
	retries     int
	cancels     int
	resolutions map[int]imports.Resolution
}

func newFakeBackend(preview *imports.ImportPreview, duplicates []imports.DuplicateRecord) *fakeImportBackend {
	return &fakeImportBackend{
		job: imports.ImportJob{
			ID:         primitive.NewObjectID(),
			Status:     imports.ImportStatusValidating,
			Preview:    preview,
			Duplicates: duplicates,
		},
		validateScript: []imports.ImportStatus{imports.ImportStatusValidating, imports.ImportStatusValidated},
		commitScript:   []imports.ImportStatus{imports.ImportStatusImporting, imports.ImportStatusCompleted},
	}
}

func (b *fakeImportBackend) snapshot(status imports.ImportStatus) imports.ImportJob {
	j := b.job
	j.Status = status
	return j
}

func (b *fakeImportBackend) Upload(ctx context.Context, templateID, path string, opts imports.ImportOptions) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return imports.ImportJob{}, b.uploadErr
	}
	b.uploads++
	b.job.TemplateID = templateID
	b.job.FileName = filepath.Base(path)
	b.job.Options = opts
	b.script = b.validateScript
	b.cursor = 0
	return b.snapshot(imports.ImportStatusValidating), nil
}

func (b *fakeImportBackend) FetchJob(ctx context.Context, id string) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.script) == 0 {
		return b.snapshot(b.job.Status), nil
	}
	status := b.script[b.cursor]
	if b.cursor < len(b.script)-1 {
		b.cursor++
	}
	return b.snapshot(status), nil
}

func (b *fakeImportBackend) ResolveDuplicates(ctx context.Context, id string, mapping map[int]imports.Resolution) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolutions = mapping
	return b.snapshot(imports.ImportStatusValidated), nil
}

func (b *fakeImportBackend) Approve(ctx context.Context, id string, ack bool) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.approvals++
	b.job.AcknowledgeWarnings = ack
	b.script = b.commitScript
	b.cursor = 0
	return b.snapshot(imports.ImportStatusImporting), nil
}

func (b *fakeImportBackend) Retry(ctx context.Context, id string) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retries++
	b.script = b.commitScript
	b.cursor = 0
	return b.snapshot(imports.ImportStatusImporting), nil
}

func (b *fakeImportBackend) Cancel(ctx context.Context, id string) (imports.ImportJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels++
	b.script = []imports.ImportStatus{imports.ImportStatusCancelled}
	b.cursor = 0
	return b.snapshot(imports.ImportStatusImporting), nil
}

func writeTempCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "residents.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name,Email\nAda,ada@example.com\n"), 0o644))
	return path
}

func newTestFlow(t *testing.T, backend ImportBackend) *ImportFlow {
	t.Helper()
	flow, err := NewImportFlow(backend, ImportFlowConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	return flow
}

func TestImportFlowHappyPath(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      1,
		ImportableRows: 1,
		IsValid:        true,
	}, nil)
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	assert.Equal(t, ImportStateSelectTemplate, flow.State())
	require.NoError(t, flow.SelectTemplate("tpl-1"))
	assert.Equal(t, ImportStateUpload, flow.State())

	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))
	assert.Equal(t, ImportStatePreview, flow.State())
	require.NotNil(t, flow.Preview())
	assert.True(t, flow.Preview().CanApprove())

	require.NoError(t, flow.Approve(ctx))
	assert.Equal(t, ImportStateImporting, flow.State())

	waitFor(t, func() bool { return flow.State() == ImportStateComplete })
	job, ok := flow.Job()
	require.True(t, ok)
	assert.Equal(t, imports.ImportStatusCompleted, job.Status)
	assert.Equal(t, 1, backend.approvals)
}

func TestImportFlowRejectsBadFileBeforeUpload(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	flow := newTestFlow(t, backend)

	require.NoError(t, flow.SelectTemplate("tpl-1"))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a spreadsheet"), 0o644))

	err := flow.Upload(context.Background(), path, imports.ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
	assert.Zero(t, backend.uploads, "rejected files must not reach the backend")
	assert.Equal(t, ImportStateUpload, flow.State())
}

func TestImportFlowEnforcesUploadSizeLimit(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	flow, err := NewImportFlow(backend, ImportFlowConfig{
		PollInterval:   10 * time.Millisecond,
		MaxUploadBytes: 10,
	})
	require.NoError(t, err)
	require.NoError(t, flow.SelectTemplate("tpl-1"))

	err = flow.Upload(context.Background(), writeTempCSV(t), imports.ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeding")
	assert.Zero(t, backend.uploads)
}

func TestImportFlowStateGuards(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	assert.Error(t, flow.Upload(ctx, "whatever.csv", imports.ImportOptions{}), "upload before template selection")
	assert.Error(t, flow.Approve(ctx), "approve before preview")
	assert.Error(t, flow.Retry(ctx), "retry before importing")
	assert.Error(t, flow.Cancel(ctx), "cancel with no job")
	assert.Error(t, flow.SelectTemplate(""))
}

func TestImportFlowCancelUploadClearsTemplate(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	flow := newTestFlow(t, backend)

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.CancelUpload())
	assert.Equal(t, ImportStateSelectTemplate, flow.State())

	err := flow.Upload(context.Background(), writeTempCSV(t), imports.ImportOptions{})
	require.Error(t, err, "the dropped template must be re-selected before uploading")
	assert.Zero(t, backend.uploads)

	assert.Error(t, flow.CancelUpload(), "only the upload stage can back out to template selection")
}

func TestImportFlowCancelPreviewKeepsTemplate(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      2,
		ImportableRows: 2,
		IsValid:        true,
	}, []imports.DuplicateRecord{{ImportRow: 2, ExistingID: "a1", Confidence: 95}})
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))
	require.Equal(t, ImportStatePreview, flow.State())

	require.NoError(t, flow.CancelPreview())
	assert.Equal(t, ImportStateUpload, flow.State())
	assert.Nil(t, flow.Preview(), "the discarded preview must not linger")
	assert.Nil(t, flow.Resolutions())
	_, ok := flow.Job()
	assert.False(t, ok, "the abandoned job snapshot must be discarded")

	// The template survives: a corrected file uploads without re-selecting.
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))
	assert.Equal(t, ImportStatePreview, flow.State())
	assert.Equal(t, 2, backend.uploads)

	assert.Error(t, flow.CancelUpload(), "preview backs out one stage at a time")
}

func TestImportFlowValidationFailure(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	backend.validateScript = []imports.ImportStatus{imports.ImportStatusValidating, imports.ImportStatusValidationFailed}
	backend.job.FailureReason = "missing header row"
	flow := newTestFlow(t, backend)

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	err := flow.Upload(context.Background(), writeTempCSV(t), imports.ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
	assert.NotEqual(t, ImportStatePreview, flow.State())
}

func TestImportFlowWarningsBlockApprovalUntilAcknowledged(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      2,
		ImportableRows: 2,
		WarningRows:    1,
		IsValid:        true,
	}, nil)
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))

	err := flow.Approve(ctx)
	require.Error(t, err, "warnings must block approval")
	assert.Zero(t, backend.approvals)

	require.NoError(t, flow.AcknowledgeWarnings())
	require.NoError(t, flow.Approve(ctx))

	backend.mu.Lock()
	ack := backend.job.AcknowledgeWarnings
	backend.mu.Unlock()
	assert.True(t, ack, "acknowledgement must be forwarded to the backend")
}

func TestImportFlowDuplicateResolutionRoundTrip(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      3,
		ImportableRows: 3,
		IsValid:        true,
	}, []imports.DuplicateRecord{
		{ImportRow: 2, ExistingID: "a1", Confidence: 95},
		{ImportRow: 3, ExistingID: "b2", Confidence: 60},
	})
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))

	set := flow.Resolutions()
	require.NotNil(t, set)
	assert.Equal(t, 2, set.Len())

	// An unresolved duplicate blocks approval.
	set.Clear(3)
	err := flow.Approve(ctx)
	require.Error(t, err)
	assert.Zero(t, backend.approvals)

	require.NoError(t, set.Set(3, imports.ResolutionUpdate))
	require.NoError(t, flow.SubmitResolutions(ctx))
	require.NoError(t, flow.Approve(ctx))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, imports.ResolutionSkip, backend.resolutions[2], "high confidence defaults to skip")
	assert.Equal(t, imports.ResolutionUpdate, backend.resolutions[3])
}

func TestImportFlowFailedImportStaysForRetry(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      1,
		ImportableRows: 1,
		IsValid:        true,
	}, nil)
	backend.commitScript = []imports.ImportStatus{imports.ImportStatusImporting, imports.ImportStatusFailed}
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))
	require.NoError(t, flow.Approve(ctx))

	waitFor(t, func() bool {
		job, ok := flow.Job()
		return ok && job.Status == imports.ImportStatusFailed
	})
	assert.Equal(t, ImportStateImporting, flow.State(), "a failed import offers retry instead of advancing")

	backend.mu.Lock()
	backend.commitScript = []imports.ImportStatus{imports.ImportStatusImporting, imports.ImportStatusCompleted}
	backend.mu.Unlock()

	require.NoError(t, flow.Retry(ctx))
	waitFor(t, func() bool { return flow.State() == ImportStateComplete })
	assert.Equal(t, 1, backend.retries)
}

func TestImportFlowStartNewDiscardsStaleRun(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      1,
		ImportableRows: 1,
		IsValid:        true,
	}, nil)
	// Hold validation open long enough to restart mid-flight.
	backend.validateScript = []imports.ImportStatus{
		imports.ImportStatusValidating, imports.ImportStatusValidating,
		imports.ImportStatusValidating, imports.ImportStatusValidated,
	}
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))

	uploadDone := make(chan error, 1)
	go func() { uploadDone <- flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}) }()

	waitFor(t, func() bool {
		_, ok := flow.Job()
		return ok
	})
	flow.StartNew()

	select {
	case err := <-uploadDone:
		require.Error(t, err, "a restarted flow must not accept the stale validation result")
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not return after restart")
	}

	assert.Equal(t, ImportStateSelectTemplate, flow.State())
	_, ok := flow.Job()
	assert.False(t, ok, "stale job snapshots must be discarded")
	assert.Nil(t, flow.Preview())
}

func TestImportFlowCancelDuringImport(t *testing.T) {
	backend := newFakeBackend(&imports.ImportPreview{
		TotalRows:      1,
		ImportableRows: 1,
		IsValid:        true,
	}, nil)
	backend.commitScript = []imports.ImportStatus{
		imports.ImportStatusImporting, imports.ImportStatusImporting, imports.ImportStatusImporting,
	}
	flow := newTestFlow(t, backend)
	ctx := context.Background()

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	require.NoError(t, flow.Upload(ctx, writeTempCSV(t), imports.ImportOptions{}))
	require.NoError(t, flow.Approve(ctx))

	require.NoError(t, flow.Cancel(ctx))
	assert.Equal(t, 1, backend.cancels)

	waitFor(t, func() bool {
		job, ok := flow.Job()
		return ok && job.Status == imports.ImportStatusCancelled
	})
	assert.Equal(t, ImportStateImporting, flow.State(), "cancellation never auto-advances the flow")
}

func TestImportFlowUploadBackendError(t *testing.T) {
	backend := newFakeBackend(nil, nil)
	backend.uploadErr = fmt.Errorf("service unavailable")
	flow := newTestFlow(t, backend)

	require.NoError(t, flow.SelectTemplate("tpl-1"))
	err := flow.Upload(context.Background(), writeTempCSV(t), imports.ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, ImportStateUpload, flow.State(), "a failed upload stays in upload for another attempt")
}
