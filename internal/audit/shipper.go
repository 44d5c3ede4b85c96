package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
)

// shipBatchSize caps one ledger read per shipping pass iteration.
const shipBatchSize = 500

// target exports a batch of committed audit rows to one external sink.
type target interface {
	Name() string
	Ship(ctx context.Context, rows []*models.AuditLog) error
}

// Shipper tails the audit ledger and forwards committed rows to the configured
// sinks. Shipping is best-effort and strictly after commit: a sink outage never
// blocks or rolls back the state change the rows describe. The cursor only
// advances when every sink accepted the batch, so a flaky sink sees rows again
// rather than missing them.
type Shipper struct {
	repo    *repositories.AuditRepository
	targets []target
	logger  *slog.Logger

	mu     sync.Mutex
	cursor time.Time
}

// SetCursor overrides the export cursor. Intended for tests and for resuming
// from a recorded position.
func (s *Shipper) SetCursor(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = t
}

// NewShipper builds a Shipper from config. Disabled entries are skipped; a
// config with no enabled shippers yields a Shipper whose Enabled() is false.
// The cursor starts at construction time: rows older than process start are
// already durable in the database and are not re-exported.
func NewShipper(cfg config.AuditConfig, repo *repositories.AuditRepository, logger *slog.Logger) (*Shipper, error) {
	s := &Shipper{
		repo:   repo,
		logger: logger,
		cursor: time.Now(),
	}
	for i, sc := range cfg.Shippers {
		if !sc.Enabled {
			continue
		}
		switch sc.Type {
		case "webhook":
			if sc.Webhook == nil || sc.Webhook.URL == "" {
				return nil, fmt.Errorf("audit: shipper %d: webhook type requires a url", i)
			}
			timeout := time.Duration(sc.Webhook.TimeoutSecs) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			s.targets = append(s.targets, &webhookTarget{
				url:     sc.Webhook.URL,
				headers: sc.Webhook.Headers,
				client:  &http.Client{Timeout: timeout},
			})
		case "file":
			if sc.File == nil || sc.File.Path == "" {
				return nil, fmt.Errorf("audit: shipper %d: file type requires a path", i)
			}
			s.targets = append(s.targets, &fileTarget{path: sc.File.Path})
		default:
			return nil, fmt.Errorf("audit: shipper %d: unknown type %q (must be 'webhook' or 'file')", i, sc.Type)
		}
	}
	return s, nil
}

// Enabled reports whether any sink is configured.
func (s *Shipper) Enabled() bool {
	return len(s.targets) > 0
}

// Run performs one shipping pass and returns the number of rows exported. It
// satisfies the sweep function signature so the pass can run on a background
// ticker.
func (s *Shipper) Run(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shipped := 0
	for {
		rows, err := s.repo.ListSince(ctx, s.cursor, shipBatchSize)
		if err != nil {
			return shipped, fmt.Errorf("reading audit ledger: %w", err)
		}
		if len(rows) == 0 {
			return shipped, nil
		}

		for _, t := range s.targets {
			if err := t.Ship(ctx, rows); err != nil {
				return shipped, fmt.Errorf("shipping %d rows to %s: %w", len(rows), t.Name(), err)
			}
		}

		s.cursor = rows[len(rows)-1].CreatedAt
		shipped += len(rows)
		s.logger.Debug("audit batch shipped", "rows", len(rows), "cursor", s.cursor)
		if len(rows) < shipBatchSize {
			return shipped, nil
		}
	}
}

type webhookTarget struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func (t *webhookTarget) Name() string { return "webhook" }

// Ship POSTs the batch as a JSON array. Any non-2xx status is a failure so the
// cursor stays put and the batch is retried next pass.
func (t *webhookTarget) Ship(ctx context.Context, rows []*models.AuditLog) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type fileTarget struct {
	path string
}

func (t *fileTarget) Name() string { return "file" }

// Ship appends one JSON line per row. The file is opened per batch so log
// rotation tooling can move it between passes.
func (t *fileTarget) Ship(ctx context.Context, rows []*models.AuditLog) error {
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit export file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			f.Close()
			return fmt.Errorf("writing audit export file: %w", err)
		}
	}
	return f.Close()
}
