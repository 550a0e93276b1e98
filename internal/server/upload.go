package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/franckalain/doctorfood/internal/models"
)

// readUpload reads a multipart file field. A missing field reads as empty,
// which the acquirer treats as a cancelled pick.
func readUpload(c *gin.Context, field string, maxBytes int) ([]byte, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}
	if fh.Size > int64(maxBytes) {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", models.ErrInvalidImage, fh.Size, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
}
