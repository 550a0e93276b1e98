package ml

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

// LocalModel replays a canned provider reply. It lets the client be developed
// without network access; the reply still goes through full validation.
type LocalModel struct {
	config LocalConfig
	logger *zap.Logger
	reply  string
}

// LocalModelFactory implements ModelFactory for local models
type LocalModelFactory struct {
	config LocalConfig
	logger *zap.Logger
}

// NewLocalModelFactory creates a new local model factory
func NewLocalModelFactory(config LocalConfig, logger *zap.Logger) *LocalModelFactory {
	return &LocalModelFactory{config: config, logger: logger}
}

// CreateModel creates a new local model instance
func (f *LocalModelFactory) CreateModel() (Model, error) {
	return &LocalModel{
		config: f.config,
		logger: f.logger,
	}, nil
}

// Load reads the canned reply
func (m *LocalModel) Load(ctx context.Context) error {
	data, err := os.ReadFile(m.config.ReplyPath)
	if err != nil {
		return fmt.Errorf("read local reply: %w", err)
	}
	m.reply = string(data)
	m.logger.Info("local model loaded", zap.String("reply_path", m.config.ReplyPath))
	return nil
}

func (m *LocalModel) Close() error { return nil }

// Analyze returns the canned reply for any valid image
func (m *LocalModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := checkImage(req); err != nil {
		return nil, err
	}
	if m.reply == "" {
		return nil, fmt.Errorf("%w: local model not loaded", models.ErrInferenceUnavailable)
	}
	result, err := ParseResult(m.reply, req.Schema)
	if err != nil {
		return nil, err
	}
	warnRating(m.logger, result)
	return result, nil
}
