package imports

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"go-dataport/internal/features/record"
	"go-dataport/internal/features/template"

	"go.uber.org/zap"
)

// syncValidationLimit is the file size up to which validation runs inline
// so the upload response already carries the preview.
const syncValidationLimit = 256 * 1024

// cancelCheckEvery controls how often the commit loop re-reads job status
// to observe a cooperative cancel, and how often progress is persisted.
const cancelCheckEvery = 25

type ImportService interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, id string) (*ImportJob, error)
	GetUserJobs(ctx context.Context, userID string) ([]ImportJob, error)
	ResolveDuplicates(ctx context.Context, jobID, userID string, resolutions map[string]Resolution) (*ImportJob, error)
	Approve(ctx context.Context, jobID, userID string, acknowledgeWarnings bool) (*ImportJob, error)
	Retry(ctx context.Context, jobID, userID string) (*ImportJob, error)
	Cancel(ctx context.Context, jobID, userID string) (*ImportJob, error)
}

type ImportServiceImpl struct {
	ImportRepo      ImportRepository
	RecordRepo      record.RecordRepository
	TemplateService template.TemplateService
	Logger          *zap.Logger
}

func NewImportService(
	importRepo ImportRepository,
	recordRepo record.RecordRepository,
	templateService template.TemplateService,
	logger *zap.Logger,
) ImportService {
	return &ImportServiceImpl{
		ImportRepo:      importRepo,
		RecordRepo:      recordRepo,
		TemplateService: templateService,
		Logger:          logger,
	}
}

// CreateJob persists the job and starts validation. Small files validate
// inline so the response carries the preview; larger ones validate in the
// background and the caller polls.
func (s *ImportServiceImpl) CreateJob(ctx context.Context, job *ImportJob) error {
	tpl, err := s.TemplateService.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		return fmt.Errorf("template not found: %w", err)
	}
	job.TemplateName = tpl.Name
	job.Category = tpl.Category

	if err := s.ImportRepo.Create(ctx, job); err != nil {
		return err
	}

	if job.FileSize <= syncValidationLimit {
		s.runValidation(context.Background(), job.ID.Hex())
		refreshed, err := s.ImportRepo.Get(ctx, job.ID.Hex())
		if err == nil {
			*job = *refreshed
		}
		return nil
	}

	go s.runValidation(context.Background(), job.ID.Hex())
	return nil
}

func (s *ImportServiceImpl) GetJob(ctx context.Context, id string) (*ImportJob, error) {
	return s.ImportRepo.Get(ctx, id)
}

func (s *ImportServiceImpl) GetUserJobs(ctx context.Context, userID string) ([]ImportJob, error) {
	return s.ImportRepo.FindByUserID(ctx, userID, 50)
}

// runValidation parses the file, runs the validators and duplicate
// detection, and stores the preview. Only an unreadable file or a missing
// template fails validation outright; row issues are data in the preview.
func (s *ImportServiceImpl) runValidation(ctx context.Context, jobID string) {
	job, err := s.ImportRepo.Get(ctx, jobID)
	if err != nil {
		s.Logger.Error("validation: job not found", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	s.ImportRepo.UpdateStatus(ctx, jobID, ImportStatusValidating)

	fail := func(reason string) {
		job.Status = ImportStatusValidationFailed
		job.FailureReason = reason
		s.ImportRepo.Update(ctx, jobID, job)
		s.Logger.Warn("validation failed", zap.String("jobId", jobID), zap.String("reason", reason))
	}

	tpl, err := s.TemplateService.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		fail(fmt.Sprintf("template not found: %v", err))
		return
	}

	file, err := os.Open(job.FilePath)
	if err != nil {
		fail(fmt.Sprintf("failed to open file: %v", err))
		return
	}
	defer file.Close()

	headers, rows, err := parseFile(file, job.FileName)
	if err != nil {
		fail(err.Error())
		return
	}

	issues := validateRows(tpl, headers, rows)

	duplicates, err := detectDuplicates(ctx, s.RecordRepo, tpl, rows)
	if err != nil {
		fail(err.Error())
		return
	}

	preview := assemblePreview(tpl, headers, rows, issues, duplicates, nil)

	errorRows := make([]int, 0)
	seen := make(map[int]bool)
	for _, issue := range issues {
		if issue.Severity == SeverityError && issue.RowNumber > 0 && !seen[issue.RowNumber] {
			seen[issue.RowNumber] = true
			errorRows = append(errorRows, issue.RowNumber)
		}
	}
	sort.Ints(errorRows)

	job.TotalRows = preview.TotalRows
	job.Preview = preview
	job.Duplicates = duplicates
	job.ErrorRowNumbers = errorRows
	job.Status = ImportStatusValidated

	if err := s.ImportRepo.Update(ctx, jobID, job); err != nil {
		s.Logger.Error("validation: failed to store preview", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	s.Logger.Info("validation complete",
		zap.String("jobId", jobID),
		zap.Int("totalRows", preview.TotalRows),
		zap.Int("errorRows", preview.ErrorRows),
		zap.Int("warningRows", preview.WarningRows),
		zap.Int("duplicates", len(duplicates)),
	)
}

// ResolveDuplicates stores a complete resolution mapping. Partial mappings
// and rows outside the duplicate set are rejected.
func (s *ImportServiceImpl) ResolveDuplicates(ctx context.Context, jobID, userID string, resolutions map[string]Resolution) (*ImportJob, error) {
	job, err := s.ownedJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != ImportStatusValidated {
		return nil, fmt.Errorf("job is %s, duplicates can only be resolved after validation", job.Status)
	}

	if err := ValidateResolutions(job.Duplicates, resolutions); err != nil {
		return nil, err
	}

	job.Resolutions = resolutions
	if job.Preview != nil {
		errorRows := make(map[int]bool, len(job.ErrorRowNumbers))
		for _, r := range job.ErrorRowNumbers {
			errorRows[r] = true
		}
		job.Preview.RecordCounts = countOutcomes(job.TotalRows, errorRows, job.Duplicates, resolutions)
	}

	if err := s.ImportRepo.Update(ctx, jobID, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Approve gates on the preview exactly as the client does: errors always
// block, warnings block unless acknowledged, and every duplicate needs a
// resolution. On success the commit runs in the background.
func (s *ImportServiceImpl) Approve(ctx context.Context, jobID, userID string, acknowledgeWarnings bool) (*ImportJob, error) {
	job, err := s.ownedJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != ImportStatusValidated {
		return nil, fmt.Errorf("job is %s, only validated jobs can be approved", job.Status)
	}
	if job.Preview == nil {
		return nil, fmt.Errorf("job has no preview")
	}
	if job.Preview.ErrorRows > 0 {
		return nil, fmt.Errorf("%d rows have validation errors and block the import", job.Preview.ErrorRows)
	}
	if job.Preview.WarningRows > 0 && !acknowledgeWarnings {
		return nil, fmt.Errorf("%d rows have warnings that must be acknowledged", job.Preview.WarningRows)
	}
	if len(job.Duplicates) > 0 {
		if err := ValidateResolutions(job.Duplicates, job.Resolutions); err != nil {
			return nil, err
		}
	}

	job.AcknowledgeWarnings = acknowledgeWarnings
	job.Status = ImportStatusImporting
	if err := s.ImportRepo.Update(ctx, jobID, job); err != nil {
		return nil, err
	}

	go s.runCommit(context.Background(), jobID)
	return job, nil
}

// Retry re-runs the commit of a failed or cancelled job with counters reset.
func (s *ImportServiceImpl) Retry(ctx context.Context, jobID, userID string) (*ImportJob, error) {
	job, err := s.ownedJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status != ImportStatusFailed && job.Status != ImportStatusCancelled {
		return nil, fmt.Errorf("job is %s, only failed or cancelled jobs can be retried", job.Status)
	}

	job.Status = ImportStatusImporting
	job.ProcessedRows = 0
	job.SuccessfulRows = 0
	job.FailedRows = 0
	job.SkippedRows = 0
	job.ProgressPercent = 0
	job.Errors = nil
	job.FailureReason = ""
	job.CompletedAt = nil

	if err := s.ImportRepo.Update(ctx, jobID, job); err != nil {
		return nil, err
	}

	go s.runCommit(context.Background(), jobID)
	return job, nil
}

// Cancel flips a non-terminal job to cancelled. The commit loop observes
// the status between batches and stops.
func (s *ImportServiceImpl) Cancel(ctx context.Context, jobID, userID string) (*ImportJob, error) {
	job, err := s.ownedJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() || job.Status == ImportStatusValidationFailed {
		return nil, fmt.Errorf("job is already %s", job.Status)
	}

	if err := s.ImportRepo.UpdateStatus(ctx, jobID, ImportStatusCancelled); err != nil {
		return nil, err
	}
	job.Status = ImportStatusCancelled
	return job, nil
}

func (s *ImportServiceImpl) ownedJob(ctx context.Context, jobID, userID string) (*ImportJob, error) {
	job, err := s.ImportRepo.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job not found")
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("unauthorized")
	}
	return job, nil
}

// runCommit walks every row and applies it according to validation outcome
// and duplicate resolution, persisting progress as it goes.
func (s *ImportServiceImpl) runCommit(ctx context.Context, jobID string) {
	job, err := s.ImportRepo.Get(ctx, jobID)
	if err != nil {
		s.Logger.Error("commit: job not found", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	fail := func(reason string) {
		job.Status = ImportStatusFailed
		job.FailureReason = reason
		now := time.Now()
		job.CompletedAt = &now
		s.ImportRepo.Update(ctx, jobID, job)
		s.Logger.Error("import failed", zap.String("jobId", jobID), zap.String("reason", reason))
	}

	tpl, err := s.TemplateService.GetTemplate(ctx, job.TemplateID)
	if err != nil {
		fail(fmt.Sprintf("template not found: %v", err))
		return
	}

	file, err := os.Open(job.FilePath)
	if err != nil {
		fail(fmt.Sprintf("failed to open file: %v", err))
		return
	}
	_, rows, err := parseFile(file, job.FileName)
	file.Close()
	if err != nil {
		fail(err.Error())
		return
	}

	errorRows := make(map[int]bool, len(job.ErrorRowNumbers))
	for _, r := range job.ErrorRowNumbers {
		errorRows[r] = true
	}
	dupByRow := make(map[int]DuplicateRecord, len(job.Duplicates))
	for _, d := range job.Duplicates {
		dupByRow[d.ImportRow] = d
	}

	for i, row := range rows {
		rowNum := i + 1

		if rowNum%cancelCheckEvery == 0 {
			if current, err := s.ImportRepo.Get(ctx, jobID); err == nil && current.Status == ImportStatusCancelled {
				s.Logger.Info("import cancelled", zap.String("jobId", jobID), zap.Int("processedRows", job.ProcessedRows))
				current.ProcessedRows = job.ProcessedRows
				current.SuccessfulRows = job.SuccessfulRows
				current.FailedRows = job.FailedRows
				current.SkippedRows = job.SkippedRows
				current.Errors = job.Errors
				s.ImportRepo.Update(ctx, jobID, current)
				return
			}
		}

		job.ProcessedRows++

		if errorRows[rowNum] {
			if job.Options.SkipErrors {
				job.SkippedRows++
			} else {
				job.FailedRows++
				job.Errors = append(job.Errors, RowError{
					RowNumber: rowNum,
					Code:      "validation_error",
					Message:   "Row failed validation and skip_errors is off",
				})
			}
			s.persistProgress(ctx, jobID, job, rowNum, len(rows))
			continue
		}

		resolution := ResolutionCreateNew
		if dup, isDup := dupByRow[rowNum]; isDup {
			if res, ok := job.Resolutions[strconv.Itoa(rowNum)]; ok {
				resolution = res
			} else if job.Options.UpdateExisting {
				resolution = ResolutionUpdate
			} else {
				resolution = DefaultResolution(dup.Confidence)
			}
			if resolution == ResolutionUpdate {
				if err := s.applyUpdate(ctx, job, tpl, dup, row); err != nil {
					job.FailedRows++
					job.Errors = append(job.Errors, RowError{
						RowNumber: rowNum,
						Code:      "write_failed",
						Message:   err.Error(),
					})
				} else {
					job.SuccessfulRows++
				}
				s.persistProgress(ctx, jobID, job, rowNum, len(rows))
				continue
			}
			if resolution == ResolutionSkip {
				job.SkippedRows++
				s.persistProgress(ctx, jobID, job, rowNum, len(rows))
				continue
			}
		}

		if job.Options.DryRun {
			job.SuccessfulRows++
		} else if _, err := s.RecordRepo.Insert(ctx, job.Category, mapRow(tpl, row)); err != nil {
			job.FailedRows++
			job.Errors = append(job.Errors, RowError{
				RowNumber: rowNum,
				Code:      "write_failed",
				Message:   err.Error(),
			})
		} else {
			job.SuccessfulRows++
		}

		s.persistProgress(ctx, jobID, job, rowNum, len(rows))
	}

	switch {
	case job.SuccessfulRows == 0 && job.FailedRows > 0:
		job.Status = ImportStatusFailed
		job.FailureReason = "all rows failed"
	case job.FailedRows > 0:
		job.Status = ImportStatusPartial
	default:
		job.Status = ImportStatusCompleted
	}
	job.ProgressPercent = 100
	now := time.Now()
	job.CompletedAt = &now

	// Do not resurrect a job the user cancelled mid-flight.
	if current, err := s.ImportRepo.Get(ctx, jobID); err == nil && current.Status == ImportStatusCancelled {
		return
	}

	if err := s.ImportRepo.Update(ctx, jobID, job); err != nil {
		s.Logger.Error("commit: failed to store result", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	s.Logger.Info("import finished",
		zap.String("jobId", jobID),
		zap.String("status", string(job.Status)),
		zap.Int("successfulRows", job.SuccessfulRows),
		zap.Int("failedRows", job.FailedRows),
		zap.Int("skippedRows", job.SkippedRows),
	)
}

func (s *ImportServiceImpl) applyUpdate(ctx context.Context, job *ImportJob, tpl *template.MappingTemplate, dup DuplicateRecord, row map[string]string) error {
	if job.Options.DryRun {
		return nil
	}
	return s.RecordRepo.Update(ctx, job.Category, dup.ExistingID, mapRow(tpl, row))
}

func (s *ImportServiceImpl) persistProgress(ctx context.Context, jobID string, job *ImportJob, rowNum, totalRows int) {
	if totalRows > 0 {
		pct := job.ProcessedRows * 100 / totalRows
		if pct > job.ProgressPercent {
			job.ProgressPercent = pct
		}
	}
	if rowNum%cancelCheckEvery == 0 || rowNum == totalRows {
		s.ImportRepo.Update(ctx, jobID, job)
	}
}
