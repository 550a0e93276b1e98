package models

import "errors"

var (
	// ErrInvalidImage: the captured data is not a supported, decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInferenceUnavailable: the provider could not be reached or answered with a failure.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrMalformedResponse: the provider answered but the reply breaks the schema.
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidProfile    = errors.New("invalid profile")
)

// Error kinds, as reported in state snapshots and scan records.
const (
	KindInvalidImage         = "invalid_image"
	KindInferenceUnavailable = "inference_unavailable"
	KindMalformedResponse    = "malformed_response"
	KindUnknown              = "unknown"
)

// ErrorKind classifies an analysis error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidImage):
		return KindInvalidImage
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, ErrInferenceUnavailable):
		return KindInferenceUnavailable
	default:
		return KindUnknown
	}
}
