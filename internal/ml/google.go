package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/franckalain/doctorfood/internal/models"
	"github.com/franckalain/doctorfood/internal/prompt"
)

// GoogleModel implements the Model interface for Google's Vertex AI
type GoogleModel struct {
	config GoogleConfig
	logger *zap.Logger

	client *genai.Client
	model  *genai.GenerativeModel
}

// GoogleModelFactory implements ModelFactory for Google models
type GoogleModelFactory struct {
	config GoogleConfig
	logger *zap.Logger
}

// NewGoogleModelFactory creates a new Google model factory
func NewGoogleModelFactory(config GoogleConfig, logger *zap.Logger) *GoogleModelFactory {
	return &GoogleModelFactory{config: config, logger: logger}
}

// CreateModel creates a new Google model instance
func (f *GoogleModelFactory) CreateModel() (Model, error) {
	return &GoogleModel{
		config: f.config,
		logger: f.logger,
	}, nil
}

// Load initializes the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = client.GenerativeModel(m.config.Model)
	configureModel(m.model)
	m.logger.Info("vertex ai model loaded",
		zap.String("project", m.config.ProjectID),
		zap.String("location", m.config.Location),
		zap.String("model", m.config.Model),
	)
	return nil
}

// configureModel fixes the reply format once; the model is shared by
// concurrent Analyze calls and is not modified afterwards.
func configureModel(gm *genai.GenerativeModel) {
	gm.ResponseMIMEType = "application/json"
	gm.ResponseSchema = genaiSchema(prompt.Schema)
}

func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Analyze processes an image using Google's Vertex AI
func (m *GoogleModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := checkImage(req); err != nil {
		return nil, err
	}
	if m.model == nil {
		return nil, fmt.Errorf("%w: model not loaded", models.ErrInferenceUnavailable)
	}

	img := genai.Blob{MIMEType: req.Image.MediaType, Data: req.Image.Data}

	start := time.Now()
	resp, err := m.model.GenerateContent(ctx, img, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInferenceUnavailable, err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no response generated", models.ErrMalformedResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no content in response", models.ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	result, err := ParseResult(sb.String(), req.Schema)
	if err != nil {
		m.logger.Warn("vertex reply rejected", zap.Error(err), zap.String("reply", truncate(sb.String(), 512)))
		return nil, err
	}
	warnRating(m.logger, result)
	m.logger.Info("vertex analysis complete",
		zap.String("food", result.FoodName),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}

var genaiTypes = map[string]genai.Type{
	models.FieldString:  genai.TypeString,
	models.FieldBoolean: genai.TypeBoolean,
	models.FieldNumber:  genai.TypeNumber,
	models.FieldArray:   genai.TypeArray,
}

func genaiSchema(s models.ResponseSchema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
		Required:   s.Required(),
	}
	for _, f := range s.Fields {
		prop := &genai.Schema{Type: genaiTypes[f.Type], Description: f.Description}
		if f.Type == models.FieldArray {
			prop.Items = &genai.Schema{Type: genaiTypes[f.ItemType]}
		}
		out.Properties[f.Name] = prop
	}
	return out
}
