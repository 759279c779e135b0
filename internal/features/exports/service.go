package exports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-dataport/internal/config"
	"go-dataport/internal/features/record"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ExportService interface {
	StartExport(ctx context.Context, job *ExportJob) error
	GetJob(ctx context.Context, id string) (*ExportJob, error)
	GetUserJobs(ctx context.Context, userID string) ([]ExportJob, error)
	OpenArchive(ctx context.Context, token string) (*ExportJob, *os.File, error)
	SweepExpired(ctx context.Context) (int, error)
}

type ExportServiceImpl struct {
	ExportRepo ExportRepository
	RecordRepo record.RecordRepository
	Config     *config.Config
	Logger     *zap.Logger
}

func NewExportService(
	exportRepo ExportRepository,
	recordRepo record.RecordRepository,
	cfg *config.Config,
	logger *zap.Logger,
) ExportService {
	if _, err := os.Stat(cfg.ExportPath); os.IsNotExist(err) {
		os.MkdirAll(cfg.ExportPath, 0755)
	}
	return &ExportServiceImpl{
		ExportRepo: exportRepo,
		RecordRepo: recordRepo,
		Config:     cfg,
		Logger:     logger,
	}
}

// StartExport validates the category selection, persists the job and
// builds the archive in the background.
func (s *ExportServiceImpl) StartExport(ctx context.Context, job *ExportJob) error {
	if len(job.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	for _, id := range job.Categories {
		if _, ok := CategoryByID(id); !ok {
			return fmt.Errorf("unknown category %q", id)
		}
	}

	if err := s.ExportRepo.Create(ctx, job); err != nil {
		return err
	}

	go s.runBuild(context.Background(), job.ID.Hex())
	return nil
}

func (s *ExportServiceImpl) GetJob(ctx context.Context, id string) (*ExportJob, error) {
	return s.ExportRepo.Get(ctx, id)
}

func (s *ExportServiceImpl) GetUserJobs(ctx context.Context, userID string) ([]ExportJob, error) {
	return s.ExportRepo.FindByUserID(ctx, userID, 50)
}

func (s *ExportServiceImpl) runBuild(ctx context.Context, jobID string) {
	job, err := s.ExportRepo.Get(ctx, jobID)
	if err != nil {
		s.Logger.Error("export: job not found", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	job.Status = ExportStatusProcessing
	s.ExportRepo.Update(ctx, jobID, job)

	fail := func(reason string) {
		job.Status = ExportStatusFailed
		job.FailureReason = reason
		now := time.Now()
		job.CompletedAt = &now
		s.ExportRepo.Update(ctx, jobID, job)
		s.Logger.Error("export failed", zap.String("jobId", jobID), zap.String("reason", reason))
	}

	categories := make([]Category, 0, len(job.Categories))
	for _, id := range job.Categories {
		cat, _ := CategoryByID(id)
		categories = append(categories, cat)
	}

	token := uuid.NewString()
	archivePath := filepath.Join(s.Config.ExportPath, token+".zip")

	out, err := os.Create(archivePath)
	if err != nil {
		fail(fmt.Sprintf("failed to create archive: %v", err))
		return
	}

	done := 0
	counts, err := writeArchive(out, categories, job.Privacy, func(category string) ([]map[string]interface{}, error) {
		records, err := s.RecordRepo.FindAll(ctx, category)
		if err != nil {
			return nil, err
		}
		done++
		job.ProgressPercent = done * 100 / len(categories)
		s.ExportRepo.Update(ctx, jobID, job)
		return records, nil
	})
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(archivePath)
		fail(err.Error())
		return
	}

	expiresAt := time.Now().Add(s.Config.ExportTTL)
	now := time.Now()

	job.Status = ExportStatusReady
	job.ProgressPercent = 100
	job.RecordCounts = counts
	job.DownloadToken = token
	job.DownloadURL = "/api/export/download/" + token
	job.ArchivePath = archivePath
	job.ExpiresAt = &expiresAt
	job.CompletedAt = &now

	if err := s.ExportRepo.Update(ctx, jobID, job); err != nil {
		s.Logger.Error("export: failed to store result", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	s.Logger.Info("export ready",
		zap.String("jobId", jobID),
		zap.Strings("categories", job.Categories),
		zap.Time("expiresAt", expiresAt),
	)
}

// OpenArchive resolves a download token, marks the job downloaded and
// hands back the open archive file.
func (s *ExportServiceImpl) OpenArchive(ctx context.Context, token string) (*ExportJob, *os.File, error) {
	job, err := s.ExportRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("export not found")
	}

	if job.Status != ExportStatusReady && job.Status != ExportStatusDownloaded {
		return nil, nil, fmt.Errorf("export is %s", job.Status)
	}
	if job.ExpiresAt != nil && time.Now().After(*job.ExpiresAt) {
		return nil, nil, fmt.Errorf("export has expired")
	}

	file, err := os.Open(job.ArchivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("archive missing")
	}

	if job.Status == ExportStatusReady {
		job.Status = ExportStatusDownloaded
		s.ExportRepo.Update(ctx, job.ID.Hex(), job)
	}

	return job, file, nil
}

// SweepExpired marks overdue archives expired and deletes them from disk.
// Run hourly by the scheduler.
func (s *ExportServiceImpl) SweepExpired(ctx context.Context) (int, error) {
	jobs, err := s.ExportRepo.FindExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for i := range jobs {
		job := &jobs[i]
		if job.ArchivePath != "" {
			if err := os.Remove(job.ArchivePath); err != nil && !os.IsNotExist(err) {
				s.Logger.Warn("sweep: failed to delete archive",
					zap.String("jobId", job.ID.Hex()), zap.Error(err))
			}
		}
		job.Status = ExportStatusExpired
		job.ArchivePath = ""
		job.DownloadURL = ""
		if err := s.ExportRepo.Update(ctx, job.ID.Hex(), job); err != nil {
			s.Logger.Warn("sweep: failed to update job",
				zap.String("jobId", job.ID.Hex()), zap.Error(err))
		}
	}

	if len(jobs) > 0 {
		s.Logger.Info("expired exports swept", zap.Int("count", len(jobs)))
	}
	return len(jobs), nil
}
