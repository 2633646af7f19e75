package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civic-issue-system/pkg/middleware"
	"civic-issue-system/pkg/queue"
	"civic-issue-system/pkg/response"
	"civic-issue-system/pkg/security"
	"civic-issue-system/services/report-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func reportsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		listReports(w, r)
	case http.MethodPost:
		createReport(w, r)
	default:
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

func reportDetailHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/"), "/")
	if rest == "" {
		response.Error(w, http.StatusBadRequest, "Missing report ID", "")
		return
	}

	segments := strings.Split(rest, "/")
	id, err := primitive.ObjectIDFromHex(segments[0])
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid report ID", err.Error())
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			getReportByID(w, r, id)
		case http.MethodDelete:
			middleware.RequireRole(RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
				deleteReport(w, r, id)
			})(w, r)
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		}
		return
	}

	if len(segments) != 2 {
		response.Error(w, http.StatusNotFound, "Unknown route", "")
		return
	}

	switch segments[1] {
	case "acknowledge":
		middleware.RequireRole(RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
			requirePatch(w, r, id, acknowledgeReport)
		})(w, r)
	case "resolve", "update-report-status-resolve":
		requirePatch(w, r, id, resolveReport)
	case "upvote", "upvote-report":
		if r.Method != http.MethodPost {
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
			return
		}
		upvoteReport(w, r, id)
	default:
		response.Error(w, http.StatusNotFound, "Unknown route", "")
	}
}

func requirePatch(w http.ResponseWriter, r *http.Request, id primitive.ObjectID, h func(http.ResponseWriter, *http.Request, primitive.ObjectID)) {
	if r.Method != http.MethodPatch {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	h(w, r, id)
}

func createReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var input struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		Address     string   `json:"address"`
		ImageURL    string   `json:"imageUrl"`
		VoiceURL    string   `json:"voiceUrl"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	if strings.TrimSpace(input.Description) == "" {
		response.Error(w, http.StatusBadRequest, "Description is required", "")
		return
	}
	if input.Latitude == nil || input.Longitude == nil {
		response.Error(w, http.StatusBadRequest, "Latitude and longitude are required", "")
		return
	}
	if err := validateCoordinates(*input.Latitude, *input.Longitude); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid coordinates", err.Error())
		return
	}

	now := time.Now()
	report := &models.Report{
		ID:           primitive.NewObjectID(),
		UserID:       claims.UserID,
		Title:        normalizeTitle(input.Title),
		Description:  input.Description,
		Location:     models.NewGeoPoint(*input.Longitude, *input.Latitude),
		Address:      input.Address,
		ImageURL:     input.ImageURL,
		VoiceURL:     input.VoiceURL,
		MLClassified: false,
		ReportStatus: models.StatusSubmitted,
		Upvotes:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := store.insert(ctx, report); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to save report", err.Error())
		return
	}

	log.Printf("[OK] Report created - ID: %s, Status: %s", report.ID.Hex(), report.ReportStatus)

	// Classification runs out of band. A broken queue leaves the report
	// un-classified; it never fails the creation response.
	if classificationEnabled {
		enqueueClassificationJob(report)
	}

	response.Success(w, http.StatusCreated, "Report created successfully", report)
}

func enqueueClassificationJob(report *models.Report) {
	job := models.ClassificationJob{
		ReportID:    report.ID.Hex(),
		Title:       report.Title,
		Description: report.Description,
		Timestamp:   time.Now(),
	}
	if report.ImageURL != "" {
		job.ImageURL = &report.ImageURL
	}

	if err := queue.PublishMessage(amqpChannel, queue.ClassificationQueue, job); err != nil {
		log.Printf("[WARN] Report %s saved but classification job not enqueued: %v", job.ReportID, err)
		return
	}
	log.Printf("[INFO] Classification job enqueued for report %s", job.ReportID)
}

func acknowledgeReport(w http.ResponseWriter, r *http.Request, id primitive.ObjectID) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := store.acknowledge(ctx, id, claims.UserID)
	if err != nil {
		writeDomainError(w, r, "Failed to acknowledge report", err)
		return
	}

	log.Printf("[OK] Report acknowledged - ID: %s, By: %s", id.Hex(), claims.UserID)

	publishReportEvent(models.ReportEvent{
		ReportID:      id.Hex(),
		Status:        models.StatusAcknowledged,
		Type:          models.EventTypeAcknowledgment,
		UserID:        updated.UserID,
		Message:       "Your report has been acknowledged",
		UpdatedReport: updated,
		CreatedAt:     time.Now(),
	})
	sideChannels.notarize(notaryURL, id.Hex(), models.StatusAcknowledged, claims.UserID)
	sideChannels.pushNotify(pushGatewayURL, updated.UserID, "Report acknowledged", updated.Title)

	response.Success(w, http.StatusOK, "Report acknowledged", updated)
}

// resolveReport is the single resolve transition for both authorization
// paths: admins may resolve from SUBMITTED or ACKNOWLEDGED, the report
// owner only from ACKNOWLEDGED.
func resolveReport(w http.ResponseWriter, r *http.Request, id primitive.ObjectID) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if claims.Role != RoleAdmin {
		// Ownership is immutable, so this pre-read cannot race the
		// transition below.
		report, err := store.findByID(ctx, id)
		if err != nil {
			writeDomainError(w, r, "Failed to resolve report", err)
			return
		}
		if report.UserID != claims.UserID {
			writeDomainError(w, r, "Failed to resolve report", errForbidden)
			return
		}
	}

	prior, err := store.resolve(ctx, id, allowedResolvePrev(claims.Role))
	if err != nil {
		writeDomainError(w, r, "Failed to resolve report", err)
		return
	}

	log.Printf("[OK] Report resolved - ID: %s, By: %s, PriorStatus: %s", id.Hex(), claims.UserID, prior.ReportStatus)

	awards := awardsForResolve(prior)
	if err := reputation.award(ctx, awards); err != nil {
		// The transition already committed; the ledger call is not
		// rolled back or retried here.
		log.Printf("[WARN] Point award failed for report %s: %v", id.Hex(), err)
	}

	updated := *prior
	updated.ReportStatus = models.StatusResolved
	updated.UpdatedAt = time.Now()

	publishReportEvent(models.ReportEvent{
		ReportID:      id.Hex(),
		Status:        models.StatusResolved,
		Type:          models.EventTypeStatusUpdate,
		UserID:        prior.UserID,
		Message:       "Your report has been resolved",
		UpdatedReport: &updated,
		CreatedAt:     time.Now(),
	})
	sideChannels.notarize(notaryURL, id.Hex(), models.StatusResolved, claims.UserID)
	sideChannels.pushNotify(pushGatewayURL, prior.UserID, "Report resolved", updated.Title)

	totalPoints := 0
	upvotersRewarded := 0
	for _, a := range awards {
		totalPoints += a.Points
		if a.Points == upvoterResolvePoints {
			upvotersRewarded++
		}
	}

	response.Success(w, http.StatusOK, "Report resolved", map[string]interface{}{
		"report":           updated,
		"pointsAwarded":    totalPoints,
		"reporterPoints":   reporterResolvePoints,
		"pointsPerUpvoter": upvoterResolvePoints,
		"upvotersRewarded": upvotersRewarded,
	})
}

func deleteReport(w http.ResponseWriter, r *http.Request, id primitive.ObjectID) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Soft delete: the document survives and is excluded from default
	// queries. No points are reverted.
	updated, err := store.softDelete(ctx, id)
	if err != nil {
		writeDomainError(w, r, "Failed to delete report", err)
		return
	}

	log.Printf("[OK] Report soft-deleted - ID: %s, By: %s", id.Hex(), claims.UserID)
	response.Success(w, http.StatusOK, "Report deleted", updated)
}

func upvoteReport(w http.ResponseWriter, r *http.Request, id primitive.ObjectID) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, cast, err := store.toggleUpvote(ctx, id, claims.UserID)
	if err != nil {
		writeDomainError(w, r, "Failed to toggle upvote", err)
		return
	}

	if cast && updated.UserID != claims.UserID {
		publishReportEvent(models.ReportEvent{
			ReportID:  id.Hex(),
			Status:    updated.ReportStatus,
			Type:      models.EventTypeUpvote,
			UserID:    updated.UserID,
			Message:   "Your report received an upvote",
			CreatedAt: time.Now(),
		})
	}

	response.Success(w, http.StatusOK, "Upvote toggled", map[string]interface{}{
		"upvotes":    updated.Upvotes,
		"hasUpvoted": cast,
	})
}

// classificationWebhookHandler is the reconciler endpoint the ML worker
// posts results to. Replays are idempotent; redelivery on missing reports
// is the upstream queue's responsibility, not ours.
func classificationWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read body", err.Error())
		return
	}

	if !security.VerifySignature(body, r.Header.Get(security.SignatureHeader)) {
		response.Error(w, http.StatusUnauthorized, "Invalid webhook signature", "")
		return
	}

	var result models.ClassificationResult
	if err := json.Unmarshal(body, &result); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	if err := validateClassification(&result); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid classification", err.Error())
		return
	}

	id, err := primitive.ObjectIDFromHex(result.ReportID)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid report ID", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := store.applyClassification(ctx, id, result.Classification)
	if err != nil {
		if errors.Is(err, errNotFound) {
			log.Printf("[WARN] Classification result for unknown report %s dropped", result.ReportID)
		}
		writeDomainError(w, r, "Failed to apply classification", err)
		return
	}

	log.Printf("[OK] Report classified - ID: %s, Severity: %s, Department: %s",
		result.ReportID, result.Classification.Severity, result.Classification.Department)

	publishReportEvent(models.ReportEvent{
		ReportID:      result.ReportID,
		Status:        models.StatusMLProcessed,
		Type:          models.EventTypeStatusUpdate,
		UserID:        updated.UserID,
		Message:       "Your report has been classified",
		UpdatedReport: updated,
		CreatedAt:     time.Now(),
	})

	response.Success(w, http.StatusOK, "Classification applied", updated)
}

func getReportByID(w http.ResponseWriter, r *http.Request, id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Direct lookup intentionally returns soft-deleted reports.
	report, err := store.findByID(ctx, id)
	if err != nil {
		writeDomainError(w, r, "Failed to fetch report", err)
		return
	}

	response.Success(w, http.StatusOK, "Report fetched successfully", report)
}

func listReports(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := notDeleted()
	if status := r.URL.Query().Get("status"); status != "" {
		if status == models.StatusDeleted || !validListStatus(status) {
			response.Error(w, http.StatusBadRequest, "Invalid status filter", "")
			return
		}
		filter["report_status"] = status
	}
	if dept := r.URL.Query().Get("department"); dept != "" {
		filter["department"] = dept
	}

	page, limit := pagination(r)
	reports, err := store.find(ctx, filter, page, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch reports", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "Reports fetched successfully", reports)
}

func myReportsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := notDeleted()
	filter["user_id"] = claims.UserID

	page, limit := pagination(r)
	reports, err := store.find(ctx, filter, page, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch reports", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "User reports fetched successfully", reports)
}

func nearbyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	lat, lng, radius, err := nearbyParams(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reports, err := store.findGeo(ctx, nearbyFilter(lat, lng, radius), 100)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch reports", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "Nearby reports fetched", reports)
}

func nearbyDepartmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	lat, lng, radius, err := nearbyParams(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}
	department := r.URL.Query().Get("department")
	if department == "" {
		response.Error(w, http.StatusBadRequest, "Missing department parameter", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := nearbyFilter(lat, lng, radius)
	filter["department"] = department

	reports, err := store.findGeo(ctx, filter, 100)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch reports", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "Nearby reports fetched", reports)
}

func boundsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	swLat, err1 := parseFloatParam(r, "swLat")
	swLng, err2 := parseFloatParam(r, "swLng")
	neLat, err3 := parseFloatParam(r, "neLat")
	neLng, err4 := parseFloatParam(r, "neLng")
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		response.Error(w, http.StatusBadRequest, "swLat, swLng, neLat, and neLng are required", "")
		return
	}
	if validateCoordinates(swLat, swLng) != nil || validateCoordinates(neLat, neLng) != nil {
		response.Error(w, http.StatusBadRequest, "Invalid coordinates", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reports, err := store.findGeo(ctx, boundsFilter(swLat, swLng, neLat, neLng), 500)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to fetch reports", err.Error())
		return
	}

	response.Success(w, http.StatusOK, "Reports in bounds fetched", reports)
}

// ---- helpers ----

func publishReportEvent(event models.ReportEvent) {
	if err := queue.PublishEvent(amqpChannel, queue.ReportsExchange, queue.RoutingKeyReportUpdated, event); err != nil {
		log.Printf("[WARN] Failed to publish report event - Report: %s, Status: %s: %v",
			event.ReportID, event.Status, err)
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	traceID := middleware.GetTraceID(r)
	switch {
	case errors.Is(err, errNotFound):
		response.Error(w, http.StatusNotFound, "Report not found", "")
	case errors.Is(err, errInvalidTransition):
		response.Error(w, http.StatusConflict, "Invalid status transition", "")
	case errors.Is(err, errInvalidState):
		response.Error(w, http.StatusConflict, "Report has been deleted", "")
	case errors.Is(err, errForbidden):
		response.Error(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, errValidation):
		response.Error(w, http.StatusBadRequest, message, err.Error())
	default:
		middleware.LogError(traceID, message, err)
		response.Error(w, http.StatusInternalServerError, message, "")
	}
}

func validListStatus(status string) bool {
	switch status {
	case models.StatusSubmitted, models.StatusAcknowledged, models.StatusResolved:
		return true
	}
	return false
}

func pagination(r *http.Request) (page, limit int64) {
	page, limit = 1, 20
	if v, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	return page, limit
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing parameter %s", name)
	}
	return strconv.ParseFloat(raw, 64)
}

func nearbyParams(r *http.Request) (lat, lng, radius float64, err error) {
	lat, err = parseFloatParam(r, "lat")
	if err != nil {
		return 0, 0, 0, err
	}
	lng, err = parseFloatParam(r, "lng")
	if err != nil {
		return 0, 0, 0, err
	}
	if err := validateCoordinates(lat, lng); err != nil {
		return 0, 0, 0, err
	}

	radius = 2000
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid radius")
		}
	}
	return lat, lng, radius, nil
}
