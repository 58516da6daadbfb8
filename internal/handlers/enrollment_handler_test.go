package handlers

import (
	"strings"
	"testing"

	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentPassRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	enrollment := models.Enrollment{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		CourseID:  uuid.New(),
		PaymentID: uuid.New(),
		Status:    models.EnrollmentConfirmed,
	}

	passData := generateEnrollmentPassData(&enrollment)

	extracted, err := extractEnrollmentIDFromPassData(passData)
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, extracted)
	assert.True(t, validatePassSignature(&enrollment, passData))
}

func TestEnrollmentPassRejectsTampering(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	enrollment := models.Enrollment{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		CourseID:  uuid.New(),
		PaymentID: uuid.New(),
		Status:    models.EnrollmentConfirmed,
	}
	passData := generateEnrollmentPassData(&enrollment)

	// Pass presented against someone else's enrollment.
	other := enrollment
	other.UserID = uuid.New()
	assert.False(t, validatePassSignature(&other, passData))

	// Forged signature.
	forged := strings.Split(passData, ";signature:")[0] + ";signature:deadbeef"
	assert.False(t, validatePassSignature(&enrollment, forged))

	_, err := extractEnrollmentIDFromPassData("ticket:nope")
	assert.Error(t, err)

	_, err = extractEnrollmentIDFromPassData("enrollment:not-a-uuid;course:x;signature:y")
	assert.Error(t, err)
}
