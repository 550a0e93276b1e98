package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
)

// GeminiModel implements the Model interface over the Gemini API REST endpoint
type GeminiModel struct {
	config GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// GeminiModelFactory implements ModelFactory for Gemini API models
type GeminiModelFactory struct {
	config GeminiConfig
	logger *zap.Logger
}

func NewGeminiModelFactory(config GeminiConfig, logger *zap.Logger) *GeminiModelFactory {
	return &GeminiModelFactory{config: config, logger: logger}
}

func (f *GeminiModelFactory) CreateModel() (Model, error) {
	return NewGeminiModel(f.config, nil, f.logger), nil
}

// NewGeminiModel builds a model; a nil httpClient gets one with the configured timeout.
func NewGeminiModel(config GeminiConfig, httpClient *http.Client, logger *zap.Logger) *GeminiModel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiModel{config: config, client: httpClient, logger: logger}
}

func (m *GeminiModel) Load(ctx context.Context) error {
	if m.config.APIKey == "" {
		return fmt.Errorf("gemini api key not configured")
	}
	if m.config.Model == "" {
		return fmt.Errorf("gemini model not configured")
	}
	return nil
}

func (m *GeminiModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// Analyze sends the photo and instruction in one generateContent call.
func (m *GeminiModel) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if err := checkImage(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(newGenerateRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(m.config.BaseURL, "/") + "/models/" + m.config.Model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", m.config.APIKey)

	start := time.Now()
	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrInferenceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.logger.Warn("gemini error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(respBody), 512)),
		)
		return nil, fmt.Errorf("%w: status=%d", models.ErrInferenceUnavailable, resp.StatusCode)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, fmt.Errorf("%w: unmarshal envelope: %v", models.ErrMalformedResponse, err)
	}
	text, err := gr.text()
	if err != nil {
		return nil, err
	}

	result, err := ParseResult(text, req.Schema)
	if err != nil {
		m.logger.Warn("gemini reply rejected", zap.Error(err), zap.String("reply", truncate(text, 512)))
		return nil, err
	}
	warnRating(m.logger, result)
	m.logger.Info("gemini analysis complete",
		zap.String("food", result.FoodName),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string      `json:"responseMimeType"`
	ResponseSchema   *schemaJSON `json:"responseSchema"`
}

type schemaJSON struct {
	Type             string                 `json:"type"`
	Description      string                 `json:"description,omitempty"`
	Items            *schemaJSON            `json:"items,omitempty"`
	Properties       map[string]*schemaJSON `json:"properties,omitempty"`
	Required         []string               `json:"required,omitempty"`
	PropertyOrdering []string               `json:"propertyOrdering,omitempty"`
}

func newGenerateRequest(req models.AnalysisRequest) generateRequest {
	return generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: req.Image.MediaType,
					Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
				}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   restSchema(req.Schema),
		},
	}
}

var restTypes = map[string]string{
	models.FieldString:  "STRING",
	models.FieldBoolean: "BOOLEAN",
	models.FieldNumber:  "NUMBER",
	models.FieldArray:   "ARRAY",
}

func restSchema(s models.ResponseSchema) *schemaJSON {
	out := &schemaJSON{
		Type:             "OBJECT",
		Properties:       make(map[string]*schemaJSON, len(s.Fields)),
		Required:         s.Required(),
		PropertyOrdering: s.Required(),
	}
	for _, f := range s.Fields {
		prop := &schemaJSON{Type: restTypes[f.Type], Description: f.Description}
		if f.Type == models.FieldArray {
			prop.Items = &schemaJSON{Type: restTypes[f.ItemType]}
		}
		out.Properties[f.Name] = prop
	}
	return out
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func (r generateResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked: %s", models.ErrMalformedResponse, r.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no candidates in response", models.ErrMalformedResponse)
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no content in response (finish reason %s)", models.ErrMalformedResponse, r.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
