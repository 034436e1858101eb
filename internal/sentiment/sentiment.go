// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

// Package sentiment defines the sentiment scorer interface and the HTTP
// client used against the external scoring API.
//
// Scores live on an approximately [-0.5, 0.5] scale matching the upstream
// API; the coarse rating is derived from the score.
package sentiment

import (
	"context"
)

// Rating is the coarse sentiment classification.
type Rating string

// Rating values.
const (
	RatingPositive Rating = "positive"
	RatingNeutral  Rating = "neutral"
	RatingNegative Rating = "negative"
)

// Rating thresholds. Scores within (-0.1, 0.1) are neutral.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

// Pre-classified label scores. Providers that ship their own coarse labels
// (e.g. review ratings) map onto fixed scores instead of calling the scorer.
const (
	LabelScorePositive = 0.4
	LabelScoreNegative = -0.4
	LabelScoreNeutral  = 0.0
)

// Result is a scored block of text.
type Result struct {
	Score  float64 `json:"score"`
	Rating Rating  `json:"rating"`
}

// Scorer analyzes text and returns its sentiment.
type Scorer interface {
	Analyze(ctx context.Context, text string) (Result, error)
}

// RatingFromScore derives the coarse rating from a numeric score.
func RatingFromScore(score float64) Rating {
	switch {
	case score >= positiveThreshold:
		return RatingPositive
	case score <= negativeThreshold:
		return RatingNegative
	default:
		return RatingNeutral
	}
}

// ScoreForLabel maps a provider-supplied classification label onto the fixed
// score used when the scorer is bypassed. Unknown labels map to neutral.
func ScoreForLabel(label string) (float64, Rating) {
	switch Rating(label) {
	case RatingPositive:
		return LabelScorePositive, RatingPositive
	case RatingNegative:
		return LabelScoreNegative, RatingNegative
	default:
		return LabelScoreNeutral, RatingNeutral
	}
}
