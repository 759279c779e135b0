package workflow

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-dataport/internal/features/imports"
)

// ImportState is the position of the user in the import workflow.
type ImportState string

const (
	ImportStateSelectTemplate ImportState = "select_template"
	ImportStateUpload         ImportState = "upload"
	ImportStatePreview        ImportState = "preview"
	ImportStateImporting      ImportState = "importing"
	ImportStateComplete       ImportState = "complete"
)

// ImportBackend is what the workflow needs from the job service. The
// HTTP client satisfies it in production; tests use fakes.
type ImportBackend interface {
	Upload(ctx context.Context, templateID, path string, opts imports.ImportOptions) (imports.ImportJob, error)
	FetchJob(ctx context.Context, id string) (imports.ImportJob, error)
	ResolveDuplicates(ctx context.Context, id string, mapping map[int]imports.Resolution) (imports.ImportJob, error)
	Approve(ctx context.Context, id string, acknowledgeWarnings bool) (imports.ImportJob, error)
	Retry(ctx context.Context, id string) (imports.ImportJob, error)
	Cancel(ctx context.Context, id string) (imports.ImportJob, error)
}

// ImportFlowConfig tunes an ImportFlow. Zero values get sane defaults.
type ImportFlowConfig struct {
	PollInterval   time.Duration
	MaxUploadBytes int64

	// OnChange fires after every state or job change, off the caller's
	// goroutine for poll-driven updates.
	OnChange func(ImportState, imports.ImportJob)

	Logger *zap.Logger
}

// ImportFlow drives one multi-stage import from template selection to
// completion. All methods are safe for concurrent use; poll results
// from an abandoned run are discarded via the generation counter.
type ImportFlow struct {
	backend ImportBackend
	cfg     ImportFlowConfig
	logger  *zap.Logger

	mu          sync.Mutex
	generation  uint64
	state       ImportState
	templateID  string
	job         imports.ImportJob
	hasJob      bool
	preview     *PreviewModel
	resolutions *ResolutionSet
}

func NewImportFlow(backend ImportBackend, cfg ImportFlowConfig) (*ImportFlow, error) {
	if backend == nil {
		return nil, fmt.Errorf("import flow: backend is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ImportFlow{
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
		state:   ImportStateSelectTemplate,
	}, nil
}

func (f *ImportFlow) State() ImportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Job returns the latest job snapshot, if a job exists yet.
func (f *ImportFlow) Job() (imports.ImportJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job, f.hasJob
}

// Preview returns the validation preview model once the upload has
// been validated.
func (f *ImportFlow) Preview() *PreviewModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.preview
}

// Resolutions returns the duplicate resolution set, nil when the
// preview found no duplicates.
func (f *ImportFlow) Resolutions() *ResolutionSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolutions
}

// SelectTemplate records the mapping template and advances to upload.
func (f *ImportFlow) SelectTemplate(templateID string) error {
	if templateID == "" {
		return fmt.Errorf("template id is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ImportStateSelectTemplate && f.state != ImportStateUpload {
		return fmt.Errorf("cannot select a template in state %s", f.state)
	}
	f.templateID = templateID
	f.setStateLocked(ImportStateUpload)
	return nil
}

// Upload validates the file locally, ships it to the backend and
// blocks until validation settles, then advances to preview. Files
// rejected by the local gate never touch the network.
func (f *ImportFlow) Upload(ctx context.Context, path string, opts imports.ImportOptions) error {
	f.mu.Lock()
	if f.state != ImportStateUpload {
		f.mu.Unlock()
		return fmt.Errorf("cannot upload in state %s", f.state)
	}
	templateID := f.templateID
	gen := f.generation
	maxBytes := f.cfg.MaxUploadBytes
	f.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat upload file: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if err := imports.CheckFile(filepath.Base(path), mimeType, info.Size(), maxBytes); err != nil {
		return err
	}

	job, err := f.backend.Upload(ctx, templateID, path, opts)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	f.applyJob(gen, job)

	if job.Status.ValidationSettled() {
		return f.settleValidation(gen, job)
	}
	return f.awaitValidation(ctx, gen, job.ID.Hex())
}

// awaitValidation polls until the validation phase is over, then moves
// the flow to preview (or reports the failure).
func (f *ImportFlow) awaitValidation(ctx context.Context, gen uint64, jobID string) error {
	done := make(chan imports.ImportJob, 1)
	poller, err := NewPoller(PollerConfig[imports.ImportJob]{
		Fetch:      f.backend.FetchJob,
		IsTerminal: func(j imports.ImportJob) bool { return j.Status.ValidationSettled() },
		Interval:   f.cfg.PollInterval,
		OnStatus:   func(j imports.ImportJob) { f.applyJob(gen, j) },
		OnDone:     func(j imports.ImportJob) { done <- j },
		Logger:     f.logger,
	})
	if err != nil {
		return err
	}
	if err := poller.Start(ctx, jobID); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		poller.Stop(jobID)
		return ctx.Err()
	case job := <-done:
		return f.settleValidation(gen, job)
	}
}

// settleValidation transitions out of the upload state once validation
// has finished either way.
func (f *ImportFlow) settleValidation(gen uint64, job imports.ImportJob) error {
	if job.Status == imports.ImportStatusValidationFailed || job.Status == imports.ImportStatusFailed {
		f.applyJob(gen, job)
		return fmt.Errorf("validation failed: %s", job.FailureReason)
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return fmt.Errorf("workflow was restarted")
	}
	f.job = job
	f.hasJob = true
	if job.Preview != nil {
		f.preview = NewPreviewModel(*job.Preview)
	}
	if len(job.Duplicates) > 0 {
		f.resolutions = NewResolutionSet(job.Duplicates)
	}
	f.setStateLocked(ImportStatePreview)
	f.mu.Unlock()
	return nil
}

// AcknowledgeWarnings marks the warning list as reviewed, unblocking
// approval for files with warnings but no errors.
func (f *ImportFlow) AcknowledgeWarnings() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ImportStatePreview || f.preview == nil {
		return fmt.Errorf("no preview to acknowledge")
	}
	f.preview.AcknowledgeWarnings()
	return nil
}

// SubmitResolutions sends the duplicate decisions to the backend. All
// duplicates must be resolved; a partial mapping is rejected before
// any network call.
func (f *ImportFlow) SubmitResolutions(ctx context.Context) error {
	f.mu.Lock()
	if f.state != ImportStatePreview {
		f.mu.Unlock()
		return fmt.Errorf("cannot resolve duplicates in state %s", f.state)
	}
	if f.resolutions == nil {
		f.mu.Unlock()
		return nil
	}
	gen := f.generation
	jobID := f.job.ID.Hex()
	mapping, err := f.resolutions.Mapping()
	f.mu.Unlock()
	if err != nil {
		return err
	}

	job, err := f.backend.ResolveDuplicates(ctx, jobID, mapping)
	if err != nil {
		return fmt.Errorf("resolve duplicates: %w", err)
	}
	f.applyJob(gen, job)
	return nil
}

// Approve starts the actual import and moves the flow to importing.
// Refused while errors remain, warnings are unacknowledged, or any
// duplicate is unresolved.
func (f *ImportFlow) Approve(ctx context.Context) error {
	f.mu.Lock()
	if f.state != ImportStatePreview {
		f.mu.Unlock()
		return fmt.Errorf("cannot approve in state %s", f.state)
	}
	if f.preview == nil || !f.preview.CanApprove() {
		f.mu.Unlock()
		return fmt.Errorf("preview does not allow approval")
	}
	if f.resolutions != nil {
		if missing := f.resolutions.Unresolved(); len(missing) > 0 {
			f.mu.Unlock()
			return fmt.Errorf("%d duplicates still unresolved", len(missing))
		}
	}
	gen := f.generation
	jobID := f.job.ID.Hex()
	ack := f.preview.Acknowledged()
	f.mu.Unlock()

	job, err := f.backend.Approve(ctx, jobID, ack)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return fmt.Errorf("workflow was restarted")
	}
	f.job = job
	f.setStateLocked(ImportStateImporting)
	f.mu.Unlock()

	go f.watchImport(ctx, gen, jobID)
	return nil
}

// watchImport polls the running import until it reaches a terminal
// status. Only a clean completion advances the flow; partial or failed
// outcomes stay in importing so the user can retry.
func (f *ImportFlow) watchImport(ctx context.Context, gen uint64, jobID string) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := f.backend.FetchJob(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("import poll failed", zap.String("jobId", jobID), zap.Error(err))
		} else {
			f.applyJob(gen, job)
			if job.Status.Terminal() {
				if job.Status == imports.ImportStatusCompleted {
					f.advance(gen, ImportStateComplete)
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Retry re-runs a failed or cancelled import without re-uploading.
func (f *ImportFlow) Retry(ctx context.Context) error {
	f.mu.Lock()
	if f.state != ImportStateImporting {
		f.mu.Unlock()
		return fmt.Errorf("cannot retry in state %s", f.state)
	}
	gen := f.generation
	jobID := f.job.ID.Hex()
	f.mu.Unlock()

	job, err := f.backend.Retry(ctx, jobID)
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	f.applyJob(gen, job)
	go f.watchImport(ctx, gen, jobID)
	return nil
}

// Cancel asks the backend to stop the running import. The flow stays
// in importing until the cancellation is observed via polling.
func (f *ImportFlow) Cancel(ctx context.Context) error {
	f.mu.Lock()
	if !f.hasJob {
		f.mu.Unlock()
		return fmt.Errorf("no job to cancel")
	}
	gen := f.generation
	jobID := f.job.ID.Hex()
	f.mu.Unlock()

	job, err := f.backend.Cancel(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	f.applyJob(gen, job)
	return nil
}

// CancelUpload backs out of the upload stage to template selection,
// dropping the selected template. In-flight results from an abandoned
// upload are discarded.
func (f *ImportFlow) CancelUpload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ImportStateUpload {
		return fmt.Errorf("cannot cancel upload in state %s", f.state)
	}
	f.generation++
	f.templateID = ""
	f.job = imports.ImportJob{}
	f.hasJob = false
	f.setStateLocked(ImportStateSelectTemplate)
	return nil
}

// CancelPreview discards the validated upload and returns to the upload
// stage so the user can pick a corrected file against the same template.
// A validation result still in flight is discarded.
func (f *ImportFlow) CancelPreview() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ImportStatePreview {
		return fmt.Errorf("cannot cancel preview in state %s", f.state)
	}
	f.generation++
	f.job = imports.ImportJob{}
	f.hasJob = false
	f.preview = nil
	f.resolutions = nil
	f.setStateLocked(ImportStateUpload)
	return nil
}

// StartNew abandons the current run and resets the flow to template
// selection. In-flight poll results from the old run are discarded.
func (f *ImportFlow) StartNew() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.templateID = ""
	f.job = imports.ImportJob{}
	f.hasJob = false
	f.preview = nil
	f.resolutions = nil
	f.setStateLocked(ImportStateSelectTemplate)
}

// applyJob stores a job snapshot unless the flow has been restarted
// since the request that produced it.
func (f *ImportFlow) applyJob(gen uint64, job imports.ImportJob) {
	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return
	}
	f.job = job
	f.hasJob = true
	state := f.state
	f.mu.Unlock()
	f.notify(state, job)
}

func (f *ImportFlow) advance(gen uint64, state ImportState) {
	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return
	}
	f.setStateLocked(state)
	job := f.job
	f.mu.Unlock()
	f.notify(state, job)
}

// setStateLocked requires f.mu held.
func (f *ImportFlow) setStateLocked(state ImportState) {
	if f.state != state {
		f.logger.Debug("import flow transition",
			zap.String("from", string(f.state)), zap.String("to", string(state)))
	}
	f.state = state
}

func (f *ImportFlow) notify(state ImportState, job imports.ImportJob) {
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(state, job)
	}
}
