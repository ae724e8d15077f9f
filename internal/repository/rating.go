package repository

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/kacharaalert/internal/model"
)

const maxCommentLength = 500

type RatingRepository struct {
	db *DB
}

func NewRatingRepository(db *DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Upsert stores userID's rating, replacing an earlier one.
func (r *RatingRepository) Upsert(ctx context.Context, userID string, score int, comment string) (*model.RatingSaveResult, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("%w: score must be between 1 and 5", ErrInvalid)
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return nil, fmt.Errorf("%w: comment is longer than %d characters", ErrInvalid, maxCommentLength)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		return nil, ErrNotFound
	}
	rec, ok := r.db.ratings[userID]
	if !ok {
		rec = &RatingRecord{ID: uuid.NewString(), UserID: userID}
		r.db.ratings[userID] = rec
	}
	rec.Score, rec.Comment, rec.UpdatedAt = score, comment, r.db.now()

	avg, total := r.aggregate()
	rating := toRating(rec)
	return &model.RatingSaveResult{Rating: &rating, AverageScore: avg, TotalRatings: total}, nil
}

// Summary returns the aggregate and userID's own rating, if any.
func (r *RatingRepository) Summary(ctx context.Context, userID string) (*model.RatingSummary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	avg, total := r.aggregate()
	summary := &model.RatingSummary{AverageScore: avg, TotalRatings: total}
	if rec, ok := r.db.ratings[userID]; ok {
		mine := toRating(rec)
		summary.MyRating = &mine
	}
	return summary, nil
}

// aggregate returns the average rounded to one decimal. Caller holds the lock.
func (r *RatingRepository) aggregate() (float64, int) {
	if len(r.db.ratings) == 0 {
		return 0, 0
	}
	sum := 0
	for _, rec := range r.db.ratings {
		sum += rec.Score
	}
	avg := float64(sum) / float64(len(r.db.ratings))
	return math.Round(avg*10) / 10, len(r.db.ratings)
}

func toRating(rec *RatingRecord) model.ServiceRating {
	return model.ServiceRating{ID: rec.ID, Score: rec.Score, Comment: rec.Comment, UpdatedAt: rec.UpdatedAt}
}
