package models

// ImageSource is the acquisition intent that produced an image.
type ImageSource string

const (
	SourceCamera  ImageSource = "camera"
	SourceGallery ImageSource = "gallery"
)

// ParseImageSource maps a client value to an ImageSource. Unknown values fall back to gallery.
func ParseImageSource(s string) ImageSource {
	if ImageSource(s) == SourceCamera {
		return SourceCamera
	}
	return SourceGallery
}

// ImageBlob is a captured still image. It lives for one analysis cycle only.
type ImageBlob struct {
	MediaType string
	Data      []byte
	Source    ImageSource
}
