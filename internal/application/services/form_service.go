package services

import (
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/forms"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/security"
)

// FormService validates and stores site form submissions.
type FormService struct {
	repo       forms.SubmissionRepository
	mailer     email.Service
	staffEmail string
	logger     *logging.ChanneledLogger
	now        func() time.Time
}

// NewFormService creates a form service. mailer may be nil, in which case
// staff alerts are skipped.
func NewFormService(repo forms.SubmissionRepository, mailer email.Service, staffEmail string, logger *logging.ChanneledLogger) *FormService {
	return &FormService{
		repo:       repo,
		mailer:     mailer,
		staffEmail: staffEmail,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and stores a submission, then alerts staff.
func (f *FormService) Submit(kind offline.FormKind, payload map[string]string) (*forms.Submission, error) {
	if payload == nil {
		payload = map[string]string{}
	}
	if err := forms.Validate(kind, payload); err != nil {
		f.logger.Forms().Debug("Submission rejected", "kind", kind, "error", err.Error())
		return nil, err
	}

	submission := &forms.Submission{
		ID:        security.GenerateULID(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: f.now(),
	}
	if err := f.repo.Store(submission); err != nil {
		f.logger.LogError(logging.ChannelForms, "store", err, map[string]any{"kind": kind})
		return nil, err
	}
	f.logger.Forms().Info("Submission received", "id", submission.ID, "kind", kind)

	if f.mailer != nil && f.staffEmail != "" {
		if err := f.mailer.SendSubmissionAlert(f.staffEmail, string(kind), payload); err != nil {
			f.logger.Forms().Warn("Staff alert failed", "id", submission.ID, "error", err.Error())
		}
	}
	return submission, nil
}

// List returns recent submissions, newest first.
func (f *FormService) List(kind offline.FormKind, limit int) ([]*forms.Submission, error) {
	return f.repo.List(kind, limit)
}
