package app

import (
	"github.com/franckalain/doctorfood/internal/models"
)

// State of the single screen.
type State string

const (
	StateNoProfile       State = "no_profile"
	StateAwaitingCapture State = "awaiting_capture"
	StateAnalyzing       State = "analyzing"
	StateResultReady     State = "result_ready"
	StateAnalysisFailed  State = "analysis_failed"
)

// ImageInfo describes the image under analysis without carrying its bytes.
type ImageInfo struct {
	MediaType string             `json:"media_type"`
	Size      int                `json:"size"`
	Source    models.ImageSource `json:"source"`
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	State        State                  `json:"state"`
	Profile      *models.UserProfile    `json:"profile,omitempty"`
	Image        *ImageInfo             `json:"image,omitempty"`
	Result       *models.AnalysisResult `json:"result,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	Cycle        uint64                 `json:"cycle"`
}

// User-facing messages, in the language of the prompt.
const (
	MessageAnalysisFailed = "حدث خطأ أثناء تحليل الصورة. يرجى المحاولة مرة أخرى."
	MessageInvalidImage   = "تعذر قراءة الصورة. يرجى اختيار صورة بصيغة مدعومة."
)

func userMessage(kind string) string {
	if kind == models.KindInvalidImage {
		return MessageInvalidImage
	}
	return MessageAnalysisFailed
}
