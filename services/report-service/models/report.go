package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Report lifecycle statuses.
const (
	StatusSubmitted    = "SUBMITTED"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusResolved     = "RESOLVED"
	StatusDeleted      = "DELETED"
)

// Severity levels assigned by admins or the ML classifier.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// PlaceholderTitle is stored until the classifier proposes a real title.
const PlaceholderTitle = "Processing…"

// Departments the classifier routes reports to.
var Departments = []string{
	"Sanitation",
	"Roads",
	"Electricity",
	"Water",
	"Health",
	"Environment",
	"Safety",
	"Other",
}

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (p GeoPoint) Longitude() float64 { return p.Coordinates[0] }
func (p GeoPoint) Latitude() float64  { return p.Coordinates[1] }

type Report struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id" json:"userId"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Department  string             `bson:"department,omitempty" json:"department,omitempty"`
	Severity    string             `bson:"severity,omitempty" json:"severity,omitempty"`
	Location    GeoPoint           `bson:"location" json:"location"`
	Address     string             `bson:"address,omitempty" json:"address,omitempty"`
	ImageURL    string             `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	VoiceURL    string             `bson:"voice_url,omitempty" json:"voiceUrl,omitempty"`

	// Shadow fields written only by the classification reconciler.
	MLClassified           bool    `bson:"ml_classified" json:"mlClassified"`
	MLSeverity             string  `bson:"ml_severity,omitempty" json:"mlSeverity,omitempty"`
	MLDepartment           string  `bson:"ml_department,omitempty" json:"mlDepartment,omitempty"`
	MLTitle                string  `bson:"ml_title,omitempty" json:"mlTitle,omitempty"`
	MLSeverityConfidence   float64 `bson:"ml_severity_confidence,omitempty" json:"mlSeverityConfidence,omitempty"`
	MLDepartmentConfidence float64 `bson:"ml_department_confidence,omitempty" json:"mlDepartmentConfidence,omitempty"`
	MLConflicts            string  `bson:"ml_conflicts,omitempty" json:"mlConflicts,omitempty"`

	ReportStatus   string     `bson:"report_status" json:"reportStatus"`
	IsAcknowledged bool       `bson:"is_acknowledged" json:"isAcknowledged"`
	AcknowledgedAt *time.Time `bson:"acknowledged_at,omitempty" json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string     `bson:"acknowledged_by,omitempty" json:"acknowledgedBy,omitempty"`

	Upvotes   int      `bson:"upvotes" json:"upvotes"`
	UpvotedBy []string `bson:"upvoted_by,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// ClassificationJob is the queue payload handed to the ML worker.
// Exactly one job is enqueued per report per classification request.
type ClassificationJob struct {
	ReportID    string    `json:"reportId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	Timestamp   time.Time `json:"timestamp"`
}

// Confidence carries the classifier's two independent scores.
type Confidence struct {
	Severity   float64 `json:"severity"`
	Department float64 `json:"department"`
}

// Classification is the classifier's verdict for one report.
type Classification struct {
	Severity   string     `json:"severity"`
	Department string     `json:"department"`
	Title      string     `json:"title,omitempty"`
	Conflicts  string     `json:"conflicts,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// ClassificationResult is the webhook body posted back by the ML worker.
type ClassificationResult struct {
	ReportID       string         `json:"reportId"`
	Classification Classification `json:"classification"`
}

// Event subtypes delivered on the realtime channel.
const (
	EventTypeStatusUpdate   = "status_update"
	EventTypeUpvote         = "upvote"
	EventTypeAcknowledgment = "acknowledgment"
)

// StatusMLProcessed marks a classification-only update on the event stream.
const StatusMLProcessed = "ML_PROCESSED"

// ReportEvent is published on the reports exchange for realtime fanout.
type ReportEvent struct {
	ReportID      string    `json:"reportId"`
	Status        string    `json:"status"`
	Type          string    `json:"type"`
	UserID        string    `json:"userId,omitempty"`
	Message       string    `json:"message"`
	UpdatedReport *Report   `json:"updatedReport,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
