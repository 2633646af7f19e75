package main

import (
	"testing"

	"civic-issue-system/services/report-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lng     float64
		wantErr bool
	}{
		{"bangalore", 12.97, 77.59, false},
		{"lat lower bound", -90, 0, false},
		{"lat upper bound", 90, 0, false},
		{"lng lower bound", 0, -180, false},
		{"lng upper bound", 0, 180, false},
		{"lat too low", -90.01, 0, true},
		{"lat too high", 90.5, 0, true},
		{"lng too low", 0, -180.1, true},
		{"lng too high", 0, 181, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCoordinates(tt.lat, tt.lng)
			if tt.wantErr {
				assert.ErrorIs(t, err, errValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGeoPointStoresLongitudeFirst(t *testing.T) {
	p := models.NewGeoPoint(77.59, 12.97)

	assert.Equal(t, "Point", p.Type)
	assert.Equal(t, []float64{77.59, 12.97}, p.Coordinates)
	assert.Equal(t, 77.59, p.Longitude())
	assert.Equal(t, 12.97, p.Latitude())
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, models.PlaceholderTitle, normalizeTitle(""))
	assert.Equal(t, models.PlaceholderTitle, normalizeTitle("   "))
	assert.Equal(t, "Pothole on main road", normalizeTitle(" Pothole on main road "))
}

func TestAllowedResolvePrev(t *testing.T) {
	assert.Equal(t, []string{models.StatusSubmitted, models.StatusAcknowledged}, allowedResolvePrev(RoleAdmin))
	assert.Equal(t, []string{models.StatusAcknowledged}, allowedResolvePrev(RoleCitizen))
}

func TestAwardsForResolve(t *testing.T) {
	report := &models.Report{
		UserID:       "reporter-1",
		ReportStatus: models.StatusAcknowledged,
		UpvotedBy:    []string{"voter-1", "voter-2", "voter-1", ""},
	}

	awards := awardsForResolve(report)

	require.Len(t, awards, 3)
	assert.Equal(t, pointAward{UserID: "reporter-1", Points: 20, Reason: "report resolved"}, awards[0])
	assert.Equal(t, 5, awards[1].Points)
	assert.Equal(t, 5, awards[2].Points)

	rewarded := []string{awards[1].UserID, awards[2].UserID}
	assert.ElementsMatch(t, []string{"voter-1", "voter-2"}, rewarded)
}

func TestAwardsForResolveAlreadyResolved(t *testing.T) {
	report := &models.Report{
		UserID:       "reporter-1",
		ReportStatus: models.StatusResolved,
		UpvotedBy:    []string{"voter-1"},
	}

	assert.Empty(t, awardsForResolve(report))
	assert.Empty(t, awardsForResolve(nil))
}

func TestAwardsForResolveNoUpvoters(t *testing.T) {
	report := &models.Report{
		UserID:       "reporter-1",
		ReportStatus: models.StatusSubmitted,
	}

	awards := awardsForResolve(report)

	require.Len(t, awards, 1)
	assert.Equal(t, "reporter-1", awards[0].UserID)
	assert.Equal(t, 20, awards[0].Points)
}

func TestValidateClassification(t *testing.T) {
	valid := func() *models.ClassificationResult {
		return &models.ClassificationResult{
			ReportID: "abc",
			Classification: models.Classification{
				Severity:   models.SeverityHigh,
				Department: "Roads",
				Confidence: models.Confidence{Severity: 0.9, Department: 0.8},
			},
		}
	}

	assert.NoError(t, validateClassification(valid()))

	missingID := valid()
	missingID.ReportID = ""
	assert.ErrorIs(t, validateClassification(missingID), errValidation)

	badSeverity := valid()
	badSeverity.Classification.Severity = "EXTREME"
	assert.ErrorIs(t, validateClassification(badSeverity), errValidation)

	missingDept := valid()
	missingDept.Classification.Department = ""
	assert.ErrorIs(t, validateClassification(missingDept), errValidation)

	badConfidence := valid()
	badConfidence.Classification.Confidence.Severity = 1.2
	assert.ErrorIs(t, validateClassification(badConfidence), errValidation)
}

func TestUsableClassifierTitle(t *testing.T) {
	assert.True(t, usableClassifierTitle("Broken streetlight"))
	assert.False(t, usableClassifierTitle(""))
	assert.False(t, usableClassifierTitle("  "))
	assert.False(t, usableClassifierTitle(models.PlaceholderTitle))
	assert.False(t, usableClassifierTitle("Civic Issue"))
	assert.False(t, usableClassifierTitle("Audio Report"))
}
