package main

import (
	"errors"
	"fmt"
	"strings"

	"civic-issue-system/services/report-service/models"
)

var (
	errNotFound          = errors.New("report not found")
	errInvalidTransition = errors.New("invalid status transition")
	errInvalidState      = errors.New("report is deleted")
	errForbidden         = errors.New("actor is not allowed to perform this transition")
	errValidation        = errors.New("validation failed")
)

// User roles carried in JWT claims.
const (
	RoleAdmin   = "admin"
	RoleCitizen = "citizen"
)

// Points awarded when a report reaches RESOLVED.
const (
	reporterResolvePoints = 20
	upvoterResolvePoints  = 5
)

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90,90]", errValidation, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180,180]", errValidation, lng)
	}
	return nil
}

// normalizeTitle falls back to the placeholder until the classifier
// proposes a real title.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.PlaceholderTitle
	}
	return title
}

// allowedResolvePrev returns the prior statuses a resolve transition may
// start from. Admins may resolve straight from SUBMITTED; the reporting
// citizen only after an admin acknowledged the report.
func allowedResolvePrev(role string) []string {
	if role == RoleAdmin {
		return []string{models.StatusSubmitted, models.StatusAcknowledged}
	}
	return []string{models.StatusAcknowledged}
}

type pointAward struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// awardsForResolve computes the reputation awards for a resolve transition
// from the report's pre-transition image. A report whose prior status was
// already RESOLVED yields no awards, which keeps retried resolves from
// paying out twice.
func awardsForResolve(prior *models.Report) []pointAward {
	if prior == nil || prior.ReportStatus == models.StatusResolved {
		return nil
	}

	awards := []pointAward{{
		UserID: prior.UserID,
		Points: reporterResolvePoints,
		Reason: "report resolved",
	}}

	seen := map[string]bool{}
	for _, uid := range prior.UpvotedBy {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		awards = append(awards, pointAward{
			UserID: uid,
			Points: upvoterResolvePoints,
			Reason: "upvoted resolved report",
		})
	}

	return awards
}

var validSeverities = map[string]bool{
	models.SeverityLow:      true,
	models.SeverityMedium:   true,
	models.SeverityHigh:     true,
	models.SeverityCritical: true,
}

// validateClassification checks a webhook body at the boundary before it
// reaches the reconciler.
func validateClassification(res *models.ClassificationResult) error {
	if res.ReportID == "" {
		return fmt.Errorf("%w: reportId is required", errValidation)
	}
	c := res.Classification
	if !validSeverities[c.Severity] {
		return fmt.Errorf("%w: unknown severity %q", errValidation, c.Severity)
	}
	if c.Department == "" {
		return fmt.Errorf("%w: department is required", errValidation)
	}
	if c.Confidence.Severity < 0 || c.Confidence.Severity > 1 ||
		c.Confidence.Department < 0 || c.Confidence.Department > 1 {
		return fmt.Errorf("%w: confidence scores must be within [0,1]", errValidation)
	}
	return nil
}

// titleSentinels are classifier fallback titles that must not replace the
// stored one.
var titleSentinels = map[string]bool{
	models.PlaceholderTitle: true,
	"Civic Issue":           true,
	"Audio Report":          true,
}

func usableClassifierTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && !titleSentinels[title]
}
