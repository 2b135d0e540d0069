// Package forms defines form submissions received from the site and the
// repository that persists them.
package forms

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
)

var ErrValidation = errors.New("validation failed")

// ValidationError lists the fields that failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for name, problem := range e.Fields {
		parts = append(parts, name+": "+problem)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Submission is a stored form.
type Submission struct {
	ID        string            `json:"id"`
	Kind      offline.FormKind  `json:"kind"`
	Payload   map[string]string `json:"payload"`
	CreatedAt time.Time         `json:"createdAt"`
}

// SubmissionRepository persists submissions.
type SubmissionRepository interface {
	Store(s *Submission) error
	List(kind offline.FormKind, limit int) ([]*Submission, error)
}

const maxFieldLength = 4000

var requiredFields = map[offline.FormKind][]string{
	offline.FormContact:     {"name", "email", "message"},
	offline.FormTourRequest: {"name", "email", "preferredDate"},
}

// Validate checks the payload for kind and trims every value in place.
func Validate(kind offline.FormKind, payload map[string]string) error {
	required, ok := requiredFields[kind]
	if !ok {
		return fmt.Errorf("%w: %q", offline.ErrInvalidFormKind, kind)
	}

	problems := map[string]string{}
	for name, value := range payload {
		value = strings.TrimSpace(value)
		payload[name] = value
		if len(value) > maxFieldLength {
			problems[name] = "too long"
		}
	}
	for _, name := range required {
		if payload[name] == "" {
			problems[name] = "required"
		}
	}
	if email := payload["email"]; email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			problems["email"] = "invalid address"
		}
	}
	if date := payload["preferredDate"]; kind == offline.FormTourRequest && date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			problems["preferredDate"] = "must be YYYY-MM-DD"
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}
