// Package imaging turns camera captures and gallery picks into image blobs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/franckalain/doctorfood/internal/models"
)

// DefaultMaxImageBytes caps a single capture.
const DefaultMaxImageBytes = 10 << 20

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// Types the standard library can decode; their headers are checked as well.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var dataURLPattern = regexp.MustCompile(`^data:([a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+)?(;[^,]*)?;base64,(.*)$`)

// Acquirer validates incoming captures.
type Acquirer struct {
	MaxBytes int
}

func NewAcquirer(maxBytes int) *Acquirer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Acquirer{MaxBytes: maxBytes}
}

// Acquire builds an ImageBlob from raw bytes. ok is false when nothing was
// selected (the picker was cancelled), in which case nothing else happens.
func (a *Acquirer) Acquire(source models.ImageSource, data []byte) (blob models.ImageBlob, ok bool, err error) {
	if len(data) == 0 {
		return models.ImageBlob{}, false, nil
	}
	if len(data) > a.MaxBytes {
		return models.ImageBlob{}, false, fmt.Errorf("%w: %d bytes exceeds limit of %d", models.ErrInvalidImage, len(data), a.MaxBytes)
	}

	mediaType := mimetype.Detect(data).String()
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !supported[mediaType] {
		return models.ImageBlob{}, false, fmt.Errorf("%w: unsupported media type %s", models.ErrInvalidImage, mediaType)
	}
	if decodable[mediaType] {
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return models.ImageBlob{}, false, fmt.Errorf("%w: %s: %v", models.ErrInvalidImage, mediaType, err)
		}
	}

	return models.ImageBlob{
		MediaType: mediaType,
		Data:      data,
		Source:    source,
	}, true, nil
}

// AcquireDataURL accepts either a data URL (data:image/jpeg;base64,...) or a
// bare base64 payload. The declared media type is ignored; content decides.
func (a *Acquirer) AcquireDataURL(source models.ImageSource, s string) (models.ImageBlob, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.ImageBlob{}, false, nil
	}
	payload := s
	if strings.HasPrefix(s, "data:") {
		m := dataURLPattern.FindStringSubmatch(s)
		if m == nil {
			return models.ImageBlob{}, false, fmt.Errorf("%w: malformed data url", models.ErrInvalidImage)
		}
		payload = m[3]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return models.ImageBlob{}, false, fmt.Errorf("%w: bad base64: %v", models.ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return models.ImageBlob{}, false, fmt.Errorf("%w: empty image", models.ErrInvalidImage)
	}
	return a.Acquire(source, data)
}

// DataURL encodes a blob for inline preview.
func DataURL(blob models.ImageBlob) string {
	return "data:" + blob.MediaType + ";base64," + base64.StdEncoding.EncodeToString(blob.Data)
}
