package forms

import (
	"errors"
	"testing"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContact(t *testing.T) {
	payload := map[string]string{"name": " Ada ", "email": "ada@example.com", "message": "hello"}
	require.NoError(t, Validate(offline.FormContact, payload))
	assert.Equal(t, "Ada", payload["name"])
}

func TestValidateMissingFields(t *testing.T) {
	err := Validate(offline.FormTourRequest, map[string]string{"name": "Ada", "email": "nope"})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "invalid address", verr.Fields["email"])
	assert.Equal(t, "required", verr.Fields["preferredDate"])
}

func TestValidateTourDate(t *testing.T) {
	payload := map[string]string{"name": "Ada", "email": "ada@example.com", "preferredDate": "June 1st"}
	var verr *ValidationError
	require.ErrorAs(t, Validate(offline.FormTourRequest, payload), &verr)
	assert.Contains(t, verr.Fields, "preferredDate")

	payload["preferredDate"] = "2024-06-01"
	assert.NoError(t, Validate(offline.FormTourRequest, payload))
}

func TestValidateUnknownKind(t *testing.T) {
	assert.ErrorIs(t, Validate("newsletter", map[string]string{}), offline.ErrInvalidFormKind)
}
