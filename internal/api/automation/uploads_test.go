package automation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/middleware"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage"
)

// ---------------------------------------------------------------------------
// Storage stub
// ---------------------------------------------------------------------------

// memStorage keeps uploaded content in a map. failUpload forces the Upload
// call to error so the handler's failure path can be exercised.
type memStorage struct {
	files      map[string][]byte
	failUpload bool
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (m *memStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	if m.failUpload {
		return nil, errors.New("backend unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	m.files[path] = data
	sum := sha256.Sum256(data)
	return &storage.UploadResult{
		Path:     path,
		Size:     int64(len(data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func (m *memStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://files.example.com/" + path, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := m.files[path]
	return ok, nil
}

func (m *memStorage) GetMetadata(ctx context.Context, path string) (*storage.FileMetadata, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	sum := sha256.Sum256(data)
	return &storage.FileMetadata{Path: path, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var uploadCols = []string{
	"id", "api_key_id", "file_name", "content_type", "size_bytes",
	"checksum", "storage_path", "status", "error_msg", "created_at", "finished_at",
}

func sampleUpload(apiKeyID string, status models.JobStatus) *models.FileUpload {
	return &models.FileUpload{
		ID:          "upload-1",
		APIKeyID:    apiKeyID,
		FileName:    "payroll-aug.csv",
		ContentType: "text/csv",
		Status:      status,
		CreatedAt:   time.Now().Add(-time.Minute),
	}
}

func uploadRows(ups ...*models.FileUpload) *sqlmock.Rows {
	rows := sqlmock.NewRows(uploadCols)
	for _, u := range ups {
		rows.AddRow(
			u.ID, u.APIKeyID, u.FileName, u.ContentType, u.SizeBytes,
			u.Checksum, u.StoragePath, u.Status, u.ErrorMsg, u.CreatedAt, u.FinishedAt,
		)
	}
	return rows
}

func newUploadRouter(t *testing.T, store storage.Storage, maxSize int64) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	tracker, mock := newTracker(t)

	h := NewUploadHandlers(tracker, store, maxSize)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.APIKeyIDKey, callerKey)
		c.Next()
	})
	r.POST("/uploads", h.UploadFileHandler())
	r.GET("/uploads/:id", h.GetUploadHandler())
	r.GET("/uploads/:id/url", h.UploadURLHandler())
	return mock, r
}

func multipartFile(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// ---------------------------------------------------------------------------
// UploadFileHandler
// ---------------------------------------------------------------------------

func TestUploadFile_StoresAndFinalizes(t *testing.T) {
	store := newMemStorage()
	mock, r := newUploadRouter(t, store, 0)

	// Job opens in PROCESSING before the first byte hits storage.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO file_uploads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Finalize reads the job back under lock; the stored row is still the
	// PROCESSING one the first transaction wrote.
	pending := sampleUpload(callerKey, models.JobProcessing)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(uploadRows(pending))
	mock.ExpectExec("UPDATE file_uploads").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAutomationInsert(mock, models.EventUploadStored)
	mock.ExpectCommit()

	body, contentType := multipartFile(t, "file", "payroll-aug.csv", []byte("emp,amount\n1,100\n"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Upload map[string]any `json:"upload"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Upload["status"] != string(models.JobCompleted) {
		t.Errorf("status = %v, want COMPLETED", resp.Upload["status"])
	}
	if resp.Upload["checksum"] == "" {
		t.Error("checksum missing from finalized upload")
	}
	if _, leaked := resp.Upload["storage_path"]; leaked {
		t.Error("storage_path must not serialize")
	}
	if len(store.files) != 1 {
		t.Errorf("stored files = %d, want 1", len(store.files))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUploadFile_MissingFile(t *testing.T) {
	_, r := newUploadRouter(t, newMemStorage(), 0)
	w := doJSON(r, "POST", "/uploads", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUploadFile_TooLarge(t *testing.T) {
	_, r := newUploadRouter(t, newMemStorage(), 8)

	body, contentType := multipartFile(t, "file", "big.csv", bytes.Repeat([]byte("x"), 64))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}

// A storage write failure must leave the job FAILED, not stuck in PROCESSING.
func TestUploadFile_StorageFailureFailsJob(t *testing.T) {
	store := newMemStorage()
	store.failUpload = true
	mock, r := newUploadRouter(t, store, 0)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO file_uploads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pending := sampleUpload(callerKey, models.JobProcessing)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(uploadRows(pending))
	mock.ExpectExec("UPDATE file_uploads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, contentType := multipartFile(t, "file", "payroll-aug.csv", []byte("emp,amount\n"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("job was not finalized as FAILED: %v", err)
	}
}

// ---------------------------------------------------------------------------
// UploadURLHandler
// ---------------------------------------------------------------------------

func TestUploadURL_Completed(t *testing.T) {
	mock, r := newUploadRouter(t, newMemStorage(), 0)
	done := sampleUpload(callerKey, models.JobCompleted)
	done.StoragePath = "payroll/key-1/upload-1/payroll-aug.csv"

	mock.ExpectQuery("FROM file_uploads WHERE id").
		WithArgs(done.ID).WillReturnRows(uploadRows(done))

	w := doJSON(r, "GET", "/uploads/upload-1/url", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["url"] == "" {
		t.Error("url missing")
	}
	if resp["expires_in"] != float64(900) {
		t.Errorf("expires_in = %v, want 900", resp["expires_in"])
	}
}

func TestUploadURL_NotCompletedConflict(t *testing.T) {
	mock, r := newUploadRouter(t, newMemStorage(), 0)
	pending := sampleUpload(callerKey, models.JobProcessing)

	mock.ExpectQuery("FROM file_uploads WHERE id").
		WithArgs(pending.ID).WillReturnRows(uploadRows(pending))

	w := doJSON(r, "GET", "/uploads/upload-1/url", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGetUpload_UnownedLooksNotFound(t *testing.T) {
	mock, r := newUploadRouter(t, newMemStorage(), 0)
	other := sampleUpload("someone-else", models.JobCompleted)

	mock.ExpectQuery("FROM file_uploads WHERE id").
		WithArgs(other.ID).WillReturnRows(uploadRows(other))

	w := doJSON(r, "GET", "/uploads/upload-1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
