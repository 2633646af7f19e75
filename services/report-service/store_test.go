package main

import (
	"testing"
	"time"

	"civic-issue-system/services/report-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNotDeletedFilterExcludesSoftDeleted(t *testing.T) {
	f := notDeleted()

	assert.Equal(t, bson.M{"report_status": bson.M{"$ne": models.StatusDeleted}}, f)
}

func TestAcknowledgeFilterRequiresSubmitted(t *testing.T) {
	id := primitive.NewObjectID()

	f := acknowledgeFilter(id)

	assert.Equal(t, models.StatusSubmitted, f["report_status"])
	assert.Equal(t, id, f["_id"])
}

func TestAcknowledgeUpdateStampsAdmin(t *testing.T) {
	now := time.Now()

	set := acknowledgeUpdate("admin-7", now)["$set"].(bson.M)

	assert.Equal(t, models.StatusAcknowledged, set["report_status"])
	assert.Equal(t, true, set["is_acknowledged"])
	assert.Equal(t, "admin-7", set["acknowledged_by"])
	assert.Equal(t, now, set["acknowledged_at"])
}

func TestResolveFilterConditionsOnPriorStatus(t *testing.T) {
	id := primitive.NewObjectID()

	f := resolveFilter(id, allowedResolvePrev(RoleCitizen))

	cond := f["report_status"].(bson.M)["$in"].([]string)
	assert.Equal(t, []string{models.StatusAcknowledged}, cond)

	f = resolveFilter(id, allowedResolvePrev(RoleAdmin))
	cond = f["report_status"].(bson.M)["$in"].([]string)
	assert.NotContains(t, cond, models.StatusResolved)
	assert.NotContains(t, cond, models.StatusDeleted)
}

func TestUpvoteToggleDocsAreInverses(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Now()

	castFilter := upvoteCastFilter(id, "user-1")
	assert.Equal(t, bson.M{"$ne": "user-1"}, castFilter["upvoted_by"])
	assert.Equal(t, bson.M{"$ne": models.StatusDeleted}, castFilter["report_status"])

	castUpdate := upvoteCastUpdate("user-1", now)
	assert.Equal(t, bson.M{"upvoted_by": "user-1"}, castUpdate["$addToSet"])
	assert.Equal(t, bson.M{"upvotes": 1}, castUpdate["$inc"])

	retractFilter := upvoteRetractFilter(id, "user-1")
	assert.Equal(t, "user-1", retractFilter["upvoted_by"])

	retractUpdate := upvoteRetractUpdate("user-1", now)
	assert.Equal(t, bson.M{"upvoted_by": "user-1"}, retractUpdate["$pull"])
	assert.Equal(t, bson.M{"upvotes": -1}, retractUpdate["$inc"])
}

func TestClassificationUpdateIsIdempotent(t *testing.T) {
	c := models.Classification{
		Severity:   models.SeverityHigh,
		Department: "Roads",
		Title:      "Large pothole",
		Confidence: models.Confidence{Severity: 0.9, Department: 0.8},
	}
	now := time.Now()

	first := classificationUpdate(c, now)["$set"].(bson.M)
	second := classificationUpdate(c, now)["$set"].(bson.M)

	// Replaying the same payload writes the same values.
	assert.Equal(t, first, second)

	assert.Equal(t, true, first["ml_classified"])
	assert.Equal(t, models.SeverityHigh, first["ml_severity"])
	assert.Equal(t, "Roads", first["ml_department"])
	assert.Equal(t, 0.9, first["ml_severity_confidence"])
	assert.Equal(t, 0.8, first["ml_department_confidence"])

	// The classifier is authoritative for the user-facing fields.
	assert.Equal(t, models.SeverityHigh, first["severity"])
	assert.Equal(t, "Roads", first["department"])
	assert.Equal(t, "Large pothole", first["title"])

	// Reputation is never touched by reconciliation.
	for field := range first {
		assert.NotContains(t, field, "points")
		assert.NotContains(t, field, "upvote")
	}
}

func TestClassificationUpdateSkipsSentinelTitle(t *testing.T) {
	c := models.Classification{
		Severity:   models.SeverityLow,
		Department: "Sanitation",
		Title:      "Civic Issue",
		Confidence: models.Confidence{Severity: 0.5, Department: 0.5},
	}

	set := classificationUpdate(c, time.Now())["$set"].(bson.M)

	assert.NotContains(t, set, "title")
	assert.NotContains(t, set, "ml_title")
}

func TestNearbyFilterGeometry(t *testing.T) {
	f := nearbyFilter(12.97, 77.59, 2000)

	assert.Equal(t, bson.M{"$ne": models.StatusDeleted}, f["report_status"])

	near := f["location"].(bson.M)["$nearSphere"].(bson.M)
	geom := near["$geometry"].(models.GeoPoint)
	require.Equal(t, "Point", geom.Type)
	// GeoJSON order: longitude first.
	assert.Equal(t, []float64{77.59, 12.97}, geom.Coordinates)
	assert.Equal(t, float64(2000), near["$maxDistance"])
}

func TestBoundsFilterPolygonIsClosed(t *testing.T) {
	f := boundsFilter(12.9, 77.5, 13.0, 77.7)

	assert.Equal(t, bson.M{"$ne": models.StatusDeleted}, f["report_status"])

	geom := f["location"].(bson.M)["$geoWithin"].(bson.M)["$geometry"].(bson.M)
	ring := geom["coordinates"].([][][]float64)[0]
	require.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
	assert.Equal(t, []float64{77.5, 12.9}, ring[0])
	assert.Equal(t, []float64{77.7, 13.0}, ring[2])
}

func TestSoftDeleteDocsRetainDocument(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Now()

	f := softDeleteFilter(id)
	assert.Equal(t, bson.M{"$ne": models.StatusDeleted}, f["report_status"])

	set := softDeleteUpdate(now)["$set"].(bson.M)
	assert.Equal(t, models.StatusDeleted, set["report_status"])
	// No $unset and no removal: the document is only marked.
	assert.Len(t, softDeleteUpdate(now), 1)
}
