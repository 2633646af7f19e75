// Package reputation maintains the per-user point and badge ledger.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civic-issue-system/services/auth-service/models"

	"gorm.io/gorm"
)

// Badge tiers in ascending order.
const (
	BadgeBronze   = "Bronze"
	BadgeSilver   = "Silver"
	BadgeGold     = "Gold"
	BadgePlatinum = "Platinum"
)

// ErrUserNotFound is returned when an award references an unknown user.
var ErrUserNotFound = errors.New("user not found")

// BadgeForPoints maps lifetime points onto the badge thresholds.
// Thresholds are monotone: a user never loses a badge by gaining points.
func BadgeForPoints(points int) string {
	switch {
	case points >= 1000:
		return BadgePlatinum
	case points >= 500:
		return BadgeGold
	case points >= 200:
		return BadgeSilver
	default:
		return BadgeBronze
	}
}

// Award is a single point grant for one user.
type Award struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// AwardResult reports one applied award. BadgeChanged is observational
// only; nothing blocks on it.
type AwardResult struct {
	UserID       string `json:"userId"`
	Points       int    `json:"points"`
	TotalPoints  int    `json:"totalPoints"`
	Badge        string `json:"badge"`
	BadgeChanged bool   `json:"badgeChanged"`
}

// Ledger mutates user reputation rows.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// AddPoints increments both lifetime and monthly points atomically, then
// recomputes the badge from the new lifetime total.
func (l *Ledger) AddPoints(ctx context.Context, userID string, n int) (*AwardResult, error) {
	if n < 0 {
		return nil, fmt.Errorf("point award must be non-negative, got %d", n)
	}

	var result AwardResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"points":         gorm.Expr("points + ?", n),
				"monthly_points": gorm.Expr("monthly_points + ?", n),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		badge := BadgeForPoints(user.Points)
		changed := badge != user.Badge
		if changed {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				Update("badge", badge).Error; err != nil {
				return err
			}
		}

		result = AwardResult{
			UserID:       userID,
			Points:       n,
			TotalPoints:  user.Points,
			Badge:        badge,
			BadgeChanged: changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyAwards applies a batch of awards. A failing award (for example an
// unknown user) is skipped so the rest of the batch still lands; the first
// failure is returned alongside the applied results.
func (l *Ledger) ApplyAwards(ctx context.Context, awards []Award) ([]AwardResult, error) {
	results := make([]AwardResult, 0, len(awards))
	var firstErr error

	for _, a := range awards {
		res, err := l.AddPoints(ctx, a.UserID, a.Points)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("award for user %s: %w", a.UserID, err)
			}
			continue
		}
		results = append(results, *res)
	}

	return results, firstErr
}

// ResetMonthly zeroes every user's monthly points and stamps the reset
// time. A reset racing a concurrent award may lose that award's monthly
// contribution; lifetime points are never affected.
func (l *Ledger) ResetMonthly(ctx context.Context) (int64, error) {
	now := time.Now()
	res := l.db.WithContext(ctx).Model(&models.User{}).
		Where("monthly_points > 0 OR last_monthly_reset IS NULL").
		Updates(map[string]interface{}{
			"monthly_points":     0,
			"last_monthly_reset": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Leaderboard returns the top users by monthly points.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var users []models.User
	err := l.db.WithContext(ctx).
		Order("monthly_points DESC, points DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
