// Package forms provides the SQL-based implementation of the submission
// repository.
package forms

import (
	"encoding/json"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/forms"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
)

// SQLSubmissionRepository is the SQL-based implementation of the SubmissionRepository.
type SQLSubmissionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSubmissionRepository creates a new instance of the repository.
func NewSQLSubmissionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// Store saves a new submission.
func (r *SQLSubmissionRepository) Store(s *forms.Submission) error {
	query := r.db.Rebind(`
		INSERT INTO form_submissions (id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)`)

	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return err
	}

	start := time.Now()
	r.logger.Database().Debug("Executing submission insert", "id", s.ID, "kind", s.Kind)

	if _, err := r.db.Exec(query, s.ID, string(s.Kind), string(payload), s.CreatedAt.UnixMilli()); err != nil {
		r.logger.Database().Error("Failed to insert submission", "error", err.Error(), "id", s.ID)
		return err
	}

	r.logger.Database().Info("Submission stored", "id", s.ID, "kind", s.Kind, "duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// List returns the newest submissions first. An empty kind lists every kind.
func (r *SQLSubmissionRepository) List(kind offline.FormKind, limit int) ([]*forms.Submission, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, payload, created_at FROM form_submissions`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	query = r.db.Rebind(query)

	start := time.Now()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Database().Error("Failed to list submissions", "error", err.Error(), "kind", kind)
		return nil, err
	}
	defer rows.Close()

	var out []*forms.Submission
	for rows.Next() {
		var (
			s         forms.Submission
			rawKind   string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &rawKind, &payload, &createdAt); err != nil {
			r.logger.Database().Error("Failed to scan submission", "error", err.Error())
			return nil, err
		}
		s.Kind = offline.FormKind(rawKind)
		s.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(payload), &s.Payload); err != nil {
			r.logger.Database().Warn("Skipping submission with unreadable payload", "id", s.ID, "error", err.Error())
			continue
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return out, nil
}
