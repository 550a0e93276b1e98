package ml

import "fmt"

// Model types
const (
	TypeGoogle = "google"
	TypeGemini = "gemini"
	TypeLocal  = "local"
)

// Config selects and configures the inference provider.
type Config struct {
	Type   string       `json:"type" env:"ML_TYPE"`
	Google GoogleConfig `json:"google"`
	Gemini GeminiConfig `json:"gemini"`
	Local  LocalConfig  `json:"local"`
}

// GoogleConfig holds configuration for Vertex AI
type GoogleConfig struct {
	ProjectID       string `json:"project_id" env:"GOOGLE_PROJECT_ID"`
	Location        string `json:"location" env:"GOOGLE_LOCATION"`
	CredentialsFile string `json:"credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
	Model           string `json:"model" env:"GOOGLE_MODEL"`
}

// GeminiConfig holds configuration for the Gemini API
type GeminiConfig struct {
	APIKey         string `json:"api_key" env:"GEMINI_API_KEY"`
	BaseURL        string `json:"base_url" env:"GEMINI_BASE_URL"`
	Model          string `json:"model" env:"GEMINI_MODEL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"GEMINI_TIMEOUT_SECONDS"`
}

// LocalConfig points the offline model at a canned reply.
type LocalConfig struct {
	ReplyPath string `json:"reply_path" env:"LOCAL_REPLY_PATH"`
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeGemini
	}
	if c.Google.Location == "" {
		c.Google.Location = "us-central1"
	}
	if c.Google.Model == "" {
		c.Google.Model = "gemini-2.5-flash"
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-3-flash-preview"
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = 60
	}
}

// Validate reports configuration the selected model cannot start with.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeGoogle:
		if c.Google.ProjectID == "" {
			return fmt.Errorf("google project id is not set")
		}
	case TypeGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini api key is not set")
		}
	case TypeLocal:
		if c.Local.ReplyPath == "" {
			return fmt.Errorf("local reply path is not set")
		}
	default:
		return fmt.Errorf("unsupported model type: %s", c.Type)
	}
	return nil
}
