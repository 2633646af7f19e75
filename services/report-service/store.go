package main

import (
	"context"
	"fmt"
	"time"

	"civic-issue-system/services/report-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// reportStore wraps the reports collection. Every mutation is a single
// conditional document update so concurrent writers cannot clobber fields
// they do not own.
type reportStore struct {
	reports *mongo.Collection
}

func newReportStore(db *mongo.Database) *reportStore {
	return &reportStore{reports: db.Collection("reports")}
}

func (s *reportStore) ensureIndexes(ctx context.Context) error {
	_, err := s.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "report_status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create report indexes: %w", err)
	}
	return nil
}

// ---- filter & update builders ----

// notDeleted excludes soft-deleted reports from all default queries.
func notDeleted() bson.M {
	return bson.M{"report_status": bson.M{"$ne": models.StatusDeleted}}
}

func acknowledgeFilter(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "report_status": models.StatusSubmitted}
}

func acknowledgeUpdate(adminID string, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"report_status":   models.StatusAcknowledged,
		"is_acknowledged": true,
		"acknowledged_at": now,
		"acknowledged_by": adminID,
		"updated_at":      now,
	}}
}

func resolveFilter(id primitive.ObjectID, allowedPrev []string) bson.M {
	return bson.M{"_id": id, "report_status": bson.M{"$in": allowedPrev}}
}

func resolveUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"report_status": models.StatusResolved,
		"updated_at":    now,
	}}
}

func softDeleteFilter(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "report_status": bson.M{"$ne": models.StatusDeleted}}
}

func softDeleteUpdate(now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"report_status": models.StatusDeleted,
		"updated_at":    now,
	}}
}

// upvoteCastFilter matches only when userID has not upvoted yet, so the
// paired update is a no-op for concurrent duplicate casts.
func upvoteCastFilter(id primitive.ObjectID, userID string) bson.M {
	return bson.M{
		"_id":           id,
		"report_status": bson.M{"$ne": models.StatusDeleted},
		"upvoted_by":    bson.M{"$ne": userID},
	}
}

func upvoteCastUpdate(userID string, now time.Time) bson.M {
	return bson.M{
		"$addToSet": bson.M{"upvoted_by": userID},
		"$inc":      bson.M{"upvotes": 1},
		"$set":      bson.M{"updated_at": now},
	}
}

// upvoteRetractFilter matches only when userID is a member, which keeps the
// counter from going below zero.
func upvoteRetractFilter(id primitive.ObjectID, userID string) bson.M {
	return bson.M{
		"_id":           id,
		"report_status": bson.M{"$ne": models.StatusDeleted},
		"upvoted_by":    userID,
	}
}

func upvoteRetractUpdate(userID string, now time.Time) bson.M {
	return bson.M{
		"$pull": bson.M{"upvoted_by": userID},
		"$inc":  bson.M{"upvotes": -1},
		"$set":  bson.M{"updated_at": now},
	}
}

// classificationUpdate applies the classifier's verdict. The classifier is
// authoritative once it has spoken: department and severity are overwritten.
// The proposed title is stored only when it is a real title, not a fallback.
// Replaying the same payload produces the identical document.
func classificationUpdate(c models.Classification, now time.Time) bson.M {
	set := bson.M{
		"ml_classified":            true,
		"ml_severity":              c.Severity,
		"ml_department":            c.Department,
		"ml_severity_confidence":   c.Confidence.Severity,
		"ml_department_confidence": c.Confidence.Department,
		"severity":                 c.Severity,
		"department":               c.Department,
		"updated_at":               now,
	}
	if c.Conflicts != "" {
		set["ml_conflicts"] = c.Conflicts
	}
	if usableClassifierTitle(c.Title) {
		set["ml_title"] = c.Title
		set["title"] = c.Title
	}
	return bson.M{"$set": set}
}

func nearbyFilter(lat, lng, radiusMeters float64) bson.M {
	f := notDeleted()
	f["location"] = bson.M{
		"$nearSphere": bson.M{
			"$geometry":    models.NewGeoPoint(lng, lat),
			"$maxDistance": radiusMeters,
		},
	}
	return f
}

func boundsFilter(swLat, swLng, neLat, neLng float64) bson.M {
	f := notDeleted()
	f["location"] = bson.M{
		"$geoWithin": bson.M{
			"$geometry": bson.M{
				"type": "Polygon",
				"coordinates": [][][]float64{{
					{swLng, swLat},
					{neLng, swLat},
					{neLng, neLat},
					{swLng, neLat},
					{swLng, swLat},
				}},
			},
		},
	}
	return f
}

// ---- storage operations ----

func (s *reportStore) insert(ctx context.Context, report *models.Report) error {
	_, err := s.reports.InsertOne(ctx, report)
	return err
}

// findByID returns the report regardless of status; soft-deleted documents
// stay retrievable by direct lookup.
func (s *reportStore) findByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	var report models.Report
	err := s.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *reportStore) find(ctx context.Context, filter bson.M, page, limit int64) ([]models.Report, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := s.reports.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := []models.Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// findGeo runs geospatial queries. $nearSphere already sorts by distance,
// so no created_at sort is applied.
func (s *reportStore) findGeo(ctx context.Context, filter bson.M, limit int64) ([]models.Report, error) {
	cursor, err := s.reports.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := []models.Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// acknowledge moves SUBMITTED -> ACKNOWLEDGED atomically and returns the
// updated report.
func (s *reportStore) acknowledge(ctx context.Context, id primitive.ObjectID, adminID string) (*models.Report, error) {
	var updated models.Report
	err := s.reports.FindOneAndUpdate(ctx,
		acknowledgeFilter(id),
		acknowledgeUpdate(adminID, time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)

	if err == mongo.ErrNoDocuments {
		return nil, s.classifyTransitionFailure(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// resolve moves a report to RESOLVED when its current status is one of
// allowedPrev, and returns the pre-transition image. The conditional filter
// makes the transition, and therefore the point award keyed on it, fire at
// most once per report.
func (s *reportStore) resolve(ctx context.Context, id primitive.ObjectID, allowedPrev []string) (*models.Report, error) {
	var prior models.Report
	err := s.reports.FindOneAndUpdate(ctx,
		resolveFilter(id, allowedPrev),
		resolveUpdate(time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&prior)

	if err == mongo.ErrNoDocuments {
		return nil, s.classifyTransitionFailure(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &prior, nil
}

// softDelete marks the report DELETED. The document is never removed.
func (s *reportStore) softDelete(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	var updated models.Report
	err := s.reports.FindOneAndUpdate(ctx,
		softDeleteFilter(id),
		softDeleteUpdate(time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)

	if err == mongo.ErrNoDocuments {
		return nil, s.classifyTransitionFailure(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// toggleUpvote flips userID's membership in upvoted_by. Cast and retract are
// each conditional on current membership, so concurrent toggles by different
// users never lose updates. Returns the updated report and whether the vote
// is now cast.
func (s *reportStore) toggleUpvote(ctx context.Context, id primitive.ObjectID, userID string) (*models.Report, bool, error) {
	// A toggle by the same user racing between the two branches can miss
	// both filters; retry covers that window.
	for attempt := 0; attempt < 3; attempt++ {
		now := time.Now()

		var updated models.Report
		err := s.reports.FindOneAndUpdate(ctx,
			upvoteCastFilter(id, userID),
			upvoteCastUpdate(userID, now),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err == nil {
			return &updated, true, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, false, err
		}

		err = s.reports.FindOneAndUpdate(ctx,
			upvoteRetractFilter(id, userID),
			upvoteRetractUpdate(userID, now),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err == nil {
			return &updated, false, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, false, err
		}

		report, err := s.findByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if report.ReportStatus == models.StatusDeleted {
			return nil, false, errInvalidState
		}
	}
	return nil, false, fmt.Errorf("upvote toggle did not converge for report %s", id.Hex())
}

// applyClassification reconciles a classifier verdict onto the report. The
// update is a pure $set of derived values, so webhook redeliveries are
// idempotent. Runs against any status: classification touches a field set
// disjoint from lifecycle transitions.
func (s *reportStore) applyClassification(ctx context.Context, id primitive.ObjectID, c models.Classification) (*models.Report, error) {
	var updated models.Report
	err := s.reports.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		classificationUpdate(c, time.Now()),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)

	if err == mongo.ErrNoDocuments {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// classifyTransitionFailure distinguishes a missing report from an illegal
// transition after a conditional update matched nothing. The follow-up read
// only picks the error message; it never mutates state.
func (s *reportStore) classifyTransitionFailure(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.findByID(ctx, id); err != nil {
		return err
	}
	return errInvalidTransition
}
