package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var correctionCols = []string{
	"id", "api_key_id", "status", "input_data", "output_data",
	"issues_found", "error_msg", "started_at", "finished_at",
}

var fileUploadCols = []string{
	"id", "api_key_id", "file_name", "content_type", "size_bytes",
	"checksum", "storage_path", "status", "error_msg", "created_at", "finished_at",
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newCorrectionRepo(t *testing.T) (*CorrectionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCorrectionRepository(db), mock
}

func newFileUploadRepo(t *testing.T) (*FileUploadRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFileUploadRepository(db), mock
}

func sampleCorrectionRow(id string, status models.JobStatus) *sqlmock.Rows {
	return sqlmock.NewRows(correctionCols).AddRow(
		id, "key-1", string(status), []byte(`{"employee_id":"e-9"}`), nil,
		nil, nil, time.Now(), nil,
	)
}

// ---------------------------------------------------------------------------
// Corrections
// ---------------------------------------------------------------------------

func TestCorrectionCreate_AssignsIDAndStartedAt(t *testing.T) {
	repo, mock := newCorrectionRepo(t)
	mock.ExpectExec("INSERT INTO payroll_corrections").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.PayrollCorrection{
		APIKeyID:  "key-1",
		Status:    models.JobProcessing,
		InputData: []byte(`{"employee_id":"e-9"}`),
	}
	if err := repo.Create(context.Background(), repo.db, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Error("expected generated ID")
	}
	if job.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
}

func TestCorrectionGetForUpdate_LocksRow(t *testing.T) {
	repo, mock := newCorrectionRepo(t)
	mock.ExpectQuery("FROM payroll_corrections WHERE id = \\$1 FOR UPDATE").
		WithArgs("job-1").
		WillReturnRows(sampleCorrectionRow("job-1", models.JobProcessing))

	job, err := repo.GetForUpdate(context.Background(), repo.db, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil || job.Status != models.JobProcessing {
		t.Fatalf("job = %v, want PROCESSING job-1", job)
	}
}

func TestCorrectionGetForUpdate_NotFound(t *testing.T) {
	repo, mock := newCorrectionRepo(t)
	mock.ExpectQuery("FROM payroll_corrections WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(correctionCols))

	job, err := repo.GetForUpdate(context.Background(), repo.db, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil, got %v", job)
	}
}

func TestCorrectionFinalize_WritesTerminalResult(t *testing.T) {
	repo, mock := newCorrectionRepo(t)
	issues := 3
	now := time.Now()
	mock.ExpectExec("UPDATE payroll_corrections").
		WithArgs("job-1", string(models.JobCompleted), []byte(`{"fixed":true}`),
			&issues, nil, &now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Finalize(context.Background(), repo.db, &models.PayrollCorrection{
		ID:          "job-1",
		Status:      models.JobCompleted,
		OutputData:  []byte(`{"fixed":true}`),
		IssuesFound: &issues,
		FinishedAt:  &now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCorrectionListByKey_DBError(t *testing.T) {
	repo, mock := newCorrectionRepo(t)
	mock.ExpectQuery("FROM payroll_corrections").WillReturnError(errDB)

	if _, err := repo.ListByKey(context.Background(), "key-1", 50, 0); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// File uploads
// ---------------------------------------------------------------------------

func TestFileUploadCreate_AssignsID(t *testing.T) {
	repo, mock := newFileUploadRepo(t)
	mock.ExpectExec("INSERT INTO file_uploads").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.FileUpload{
		APIKeyID: "key-1",
		FileName: "payroll-2026-08.csv",
		Status:   models.JobProcessing,
	}
	if err := repo.Create(context.Background(), repo.db, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestFileUploadGetByID_Found(t *testing.T) {
	repo, mock := newFileUploadRepo(t)
	checksum := "sha256:abc"
	path := "uploads/key-1/job-1/payroll-2026-08.csv"
	rows := sqlmock.NewRows(fileUploadCols).AddRow(
		"job-1", "key-1", "payroll-2026-08.csv", "text/csv", int64(2048),
		&checksum, &path, string(models.JobCompleted), nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery("FROM file_uploads WHERE id").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil || job.FileName != "payroll-2026-08.csv" {
		t.Fatalf("job = %v, want payroll-2026-08.csv", job)
	}
	if job.Status != models.JobCompleted {
		t.Errorf("Status = %s, want %s", job.Status, models.JobCompleted)
	}
}

func TestFileUploadFinalize_DBError(t *testing.T) {
	repo, mock := newFileUploadRepo(t)
	mock.ExpectExec("UPDATE file_uploads").WillReturnError(errDB)

	err := repo.Finalize(context.Background(), repo.db, &models.FileUpload{
		ID:     "job-1",
		Status: models.JobFailed,
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
}
