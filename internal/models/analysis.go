package models

import (
	"time"
)

// AnalysisResult is the provider's assessment of one meal photo.
// Field names match the reply schema; the values are never filled in locally.
type AnalysisResult struct {
	FoodName            string   `json:"foodName"`
	EstimatedWeight     string   `json:"estimatedWeight"` // free text, value + unit
	Calories            string   `json:"calories"`        // free text, value + unit
	Healthiness         string   `json:"healthiness"`
	IsHealthy           bool     `json:"isHealthy"`
	Rating              float64  `json:"rating"` // nominally 0-10, not enforced
	HealthyAlternatives []string `json:"healthyAlternatives"`
	Analysis            string   `json:"analysis"`
}

// AnalysisRequest is everything sent to the inference provider for one photo.
type AnalysisRequest struct {
	Image   ImageBlob
	Profile UserProfile
	Prompt  string
	Schema  ResponseSchema
}

// Scan statuses
const (
	ScanAnalyzing = "analyzing"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// Scan is the diagnostic record of one analysis cycle.
type Scan struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	FoodName  string    `json:"food_name,omitempty"`
	MediaType string    `json:"media_type"`
	ImageSize int       `json:"image_size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
