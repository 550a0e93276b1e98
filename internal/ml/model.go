package ml

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

// Model is an inference provider that can assess a meal photo
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Analyze sends one request and returns the schema-validated reply
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	Close() error
}

// ModelFactory creates a new model instance based on configuration
type ModelFactory interface {
	CreateModel() (Model, error)
}

// NewModel creates a new model instance based on the configured type
func NewModel(cfg Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var factory ModelFactory
	switch cfg.Type {
	case TypeGoogle:
		factory = NewGoogleModelFactory(cfg.Google, logger)
	case TypeGemini:
		factory = NewGeminiModelFactory(cfg.Gemini, logger)
	case TypeLocal:
		factory = NewLocalModelFactory(cfg.Local, logger)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
	return factory.CreateModel()
}

// checkImage enforces the image/* precondition before anything leaves the process.
func checkImage(req models.AnalysisRequest) error {
	if !strings.HasPrefix(req.Image.MediaType, "image/") {
		return fmt.Errorf("%w: media type %q", models.ErrInvalidImage, req.Image.MediaType)
	}
	if len(req.Image.Data) == 0 {
		return fmt.Errorf("%w: no image data", models.ErrInvalidImage)
	}
	return nil
}
