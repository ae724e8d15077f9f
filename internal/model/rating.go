package model

import "time"

type ServiceRating struct {
	ID        string    `json:"id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RatingSummary struct {
	AverageScore float64        `json:"averageScore"`
	TotalRatings int            `json:"totalRatings"`
	MyRating     *ServiceRating `json:"myRating"`
}

type RatingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type RatingSaveResult struct {
	Rating       *ServiceRating `json:"rating"`
	AverageScore float64        `json:"averageScore"`
	TotalRatings int            `json:"totalRatings"`
}
