package exports

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go-dataport/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanupScheduler runs the hourly expiry sweep over export archives and
// clears stale spreadsheet uploads left behind by finished import jobs.
type CleanupScheduler struct {
	Service ExportService
	Config  *config.Config
	Logger  *zap.Logger
	cronner *cron.Cron
	entryID cron.EntryID
	started bool
}

func NewCleanupScheduler(service ExportService, cfg *config.Config, logger *zap.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		Service: service,
		Config:  cfg,
		Logger:  logger,
		cronner: cron.New(),
	}
}

func (s *CleanupScheduler) Start(ctx context.Context) error {
	id, err := s.cronner.AddFunc("@hourly", s.sweep)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cronner.Start()
	s.started = true

	// Catch up on anything that expired while the service was down.
	go s.sweep()
	return nil
}

func (s *CleanupScheduler) Stop() error {
	if s.started {
		s.cronner.Stop()
	}
	return nil
}

func (s *CleanupScheduler) sweep() {
	if _, err := s.Service.SweepExpired(context.Background()); err != nil {
		s.Logger.Error("export expiry sweep failed", zap.Error(err))
	}
	s.sweepStaleUploads()
}

// sweepStaleUploads removes uploaded spreadsheets older than the export TTL.
// Validation and commit both re-read the file, so anything past the TTL
// belongs to a job that is long terminal.
func (s *CleanupScheduler) sweepStaleUploads() {
	entries, err := os.ReadDir(s.Config.UploadPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Warn("upload sweep: cannot read directory", zap.Error(err))
		}
		return
	}

	cutoff := time.Now().Add(-s.Config.ExportTTL)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.Config.UploadPath, entry.Name())
		if err := os.Remove(path); err != nil {
			s.Logger.Warn("upload sweep: failed to delete", zap.String("file", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.Logger.Info("stale uploads swept", zap.Int("count", removed))
	}
}
