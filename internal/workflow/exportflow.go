package workflow

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-dataport/internal/features/exports"
)

// ExportState is the position of the user in the export workflow.
type ExportState string

const (
	ExportStateSelect    ExportState = "select"
	ExportStateExporting ExportState = "exporting"
	ExportStateComplete  ExportState = "complete"
)

// ExportBackend is what the export workflow needs from the job
// service.
type ExportBackend interface {
	Categories(ctx context.Context) ([]exports.Category, error)
	StartExport(ctx context.Context, categories []string, privacy exports.ExportPrivacy) (exports.ExportJob, error)
	FetchExport(ctx context.Context, id string) (exports.ExportJob, error)
	// Download streams the finished archive for a job's download URL.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// ExportFlowConfig tunes an ExportFlow.
type ExportFlowConfig struct {
	PollInterval time.Duration
	OnChange     func(ExportState, exports.ExportJob)
	Logger       *zap.Logger
}

// ExportFlow drives one export from category selection to a
// downloadable archive.
type ExportFlow struct {
	backend ExportBackend
	cfg     ExportFlowConfig
	logger  *zap.Logger

	mu         sync.Mutex
	generation uint64
	state      ExportState
	selected   []string
	privacy    exports.ExportPrivacy
	job        exports.ExportJob
	hasJob     bool
}

func NewExportFlow(backend ExportBackend, cfg ExportFlowConfig) (*ExportFlow, error) {
	if backend == nil {
		return nil, fmt.Errorf("export flow: backend is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ExportFlow{
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
		state:   ExportStateSelect,
	}, nil
}

func (f *ExportFlow) State() ExportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *ExportFlow) Job() (exports.ExportJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job, f.hasJob
}

func (f *ExportFlow) Selected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.selected))
	copy(out, f.selected)
	return out
}

// SelectCategories records which categories to export. At least one is
// required and every id must exist in the registry.
func (f *ExportFlow) SelectCategories(categories []string) error {
	if len(categories) == 0 {
		return fmt.Errorf("select at least one category")
	}
	for _, id := range categories {
		if _, ok := exports.CategoryByID(id); !ok {
			return fmt.Errorf("unknown category %q", id)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ExportStateSelect {
		return fmt.Errorf("cannot change categories in state %s", f.state)
	}
	f.selected = append([]string(nil), categories...)
	return nil
}

// NeedsPrivacyOptions reports whether any selected category contains
// personal data. Privacy options are only surfaced when it does.
func (f *ExportFlow) NeedsPrivacyOptions() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.selected {
		if cat, ok := exports.CategoryByID(id); ok && cat.ContainsPersonalData {
			return true
		}
	}
	return false
}

// SetPrivacy records the privacy transforms to apply during the build.
// Ignored at build time when no selected category holds personal data.
func (f *ExportFlow) SetPrivacy(p exports.ExportPrivacy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ExportStateSelect {
		return fmt.Errorf("cannot change privacy options in state %s", f.state)
	}
	f.privacy = p
	return nil
}

// Start kicks off the export build and blocks until the archive is
// ready, polling the backend for progress.
func (f *ExportFlow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state != ExportStateSelect {
		f.mu.Unlock()
		return fmt.Errorf("cannot start an export in state %s", f.state)
	}
	if len(f.selected) == 0 {
		f.mu.Unlock()
		return fmt.Errorf("select at least one category")
	}
	gen := f.generation
	categories := append([]string(nil), f.selected...)
	privacy := f.privacy
	f.mu.Unlock()

	job, err := f.backend.StartExport(ctx, categories, privacy)
	if err != nil {
		return fmt.Errorf("start export: %w", err)
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return fmt.Errorf("workflow was restarted")
	}
	f.job = job
	f.hasJob = true
	f.setStateLocked(ExportStateExporting)
	f.mu.Unlock()
	f.notify(ExportStateExporting, job)

	return f.awaitBuild(ctx, gen, job.ID.Hex())
}

func (f *ExportFlow) awaitBuild(ctx context.Context, gen uint64, jobID string) error {
	done := make(chan exports.ExportJob, 1)
	poller, err := NewPoller(PollerConfig[exports.ExportJob]{
		Fetch:      f.backend.FetchExport,
		IsTerminal: func(j exports.ExportJob) bool { return j.Status.Terminal() },
		Interval:   f.cfg.PollInterval,
		OnStatus:   func(j exports.ExportJob) { f.applyJob(gen, j) },
		OnDone:     func(j exports.ExportJob) { done <- j },
		Logger:     f.logger,
	})
	if err != nil {
		return err
	}
	if err := poller.Start(ctx, jobID); err != nil {
		return err
	}

	var job exports.ExportJob
	select {
	case <-ctx.Done():
		poller.Stop(jobID)
		return ctx.Err()
	case job = <-done:
	}

	switch job.Status {
	case exports.ExportStatusFailed:
		return fmt.Errorf("export failed: %s", job.FailureReason)
	case exports.ExportStatusExpired:
		return fmt.Errorf("export expired before it was downloaded")
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		return fmt.Errorf("workflow was restarted")
	}
	f.job = job
	f.setStateLocked(ExportStateComplete)
	f.mu.Unlock()
	f.notify(ExportStateComplete, job)
	return nil
}

// Download streams the finished archive. The local snapshot flips to
// downloaded before the fetch, matching the server marking the job as
// soon as the stream opens; a failed fetch reverts the flip.
func (f *ExportFlow) Download(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	if f.state != ExportStateComplete {
		f.mu.Unlock()
		return nil, fmt.Errorf("no archive to download in state %s", f.state)
	}
	if f.job.DownloadURL == "" {
		f.mu.Unlock()
		return nil, fmt.Errorf("export job has no download url")
	}
	gen := f.generation
	url := f.job.DownloadURL
	prevStatus := f.job.Status
	f.job.Status = exports.ExportStatusDownloaded
	job := f.job
	f.mu.Unlock()
	f.notify(ExportStateComplete, job)

	rc, err := f.backend.Download(ctx, url)
	if err != nil {
		f.mu.Lock()
		if gen == f.generation && f.job.Status == exports.ExportStatusDownloaded {
			f.job.Status = prevStatus
		}
		job = f.job
		f.mu.Unlock()
		f.notify(ExportStateComplete, job)
		return nil, fmt.Errorf("download: %w", err)
	}
	return rc, nil
}

// StartNew abandons the current run and returns to category selection.
func (f *ExportFlow) StartNew() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.selected = nil
	f.privacy = exports.ExportPrivacy{}
	f.job = exports.ExportJob{}
	f.hasJob = false
	f.setStateLocked(ExportStateSelect)
}

func (f *ExportFlow) applyJob(gen uint64, job exports.ExportJob) {
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

// setStateLocked requires f.mu held.
func (f *ExportFlow) setStateLocked(state ExportState) {
	if f.state != state {
		f.logger.Debug("export flow transition",
			zap.String("from", string(f.state)), zap.String("to", string(state)))
	}
	f.state = state
}

func (f *ExportFlow) notify(state ExportState, job exports.ExportJob) {
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(state, job)
	}
}
