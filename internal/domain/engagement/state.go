package engagement

import "time"

// PromptState is the per-visitor record that outlives page loads.
type PromptState struct {
	HasBeenShown      bool         `json:"hasBeenShown"`
	LastDismissedAt   *time.Time   `json:"lastDismissedAt"`
	SubmissionCount   int          `json:"submissionCount"`
	LastTriggerSource *TriggerKind `json:"lastTriggerSource"`
}

// InCooldown reports whether a dismissal is still inside the window. The
// boundary itself is outside.
func (s PromptState) InCooldown(now time.Time, window time.Duration) bool {
	if s.LastDismissedAt == nil {
		return false
	}
	return now.Sub(*s.LastDismissedAt) < window
}

// Submitted reports whether the visitor has ever submitted the prompt.
func (s PromptState) Submitted() bool {
	return s.SubmissionCount > 0
}

func (s PromptState) valid() bool {
	return s.SubmissionCount >= 0
}

// VisitorSession counts page views within one browsing session.
type VisitorSession struct {
	PageViewCount    int       `json:"pageViewCount"`
	SessionStartedAt time.Time `json:"sessionStartedAt"`
	PromptShown      bool      `json:"promptShown,omitempty"`
}

// Expired reports whether the session is at or past its timeout.
func (s VisitorSession) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.SessionStartedAt) >= timeout
}

func (s VisitorSession) valid() bool {
	return s.PageViewCount >= 1 && !s.SessionStartedAt.IsZero()
}
