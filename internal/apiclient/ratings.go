package apiclient

import (
	"context"
	"errors"
	"strings"

	"github.com/kacharaalert/internal/model"
)

var ErrInvalidScore = errors.New("score must be between 1 and 5")

func (c *Client) RatingSummary(ctx context.Context) (*model.RatingSummary, error) {
	var summary model.RatingSummary
	if _, err := c.Get(ctx, "/api/v1/service-ratings/summary", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) SubmitRating(ctx context.Context, score int, comment string) (*model.RatingSaveResult, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	var result model.RatingSaveResult
	req := model.RatingRequest{Score: score, Comment: strings.TrimSpace(comment)}
	if _, err := c.Post(ctx, "/api/v1/service-ratings", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
