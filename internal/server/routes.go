package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/app"
	"github.com/franckalain/doctorfood/internal/models"
)

func (s *Server) routes(staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(s.logger), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	api.GET("/state", s.handleGetState)
	api.PUT("/profile", s.handleSaveProfile)
	api.DELETE("/profile", s.handleEditProfile)
	api.POST("/capture", s.handleCapture)
	api.POST("/reset", s.handleReset)
	api.GET("/image", s.handleGetImage)
	api.GET("/scans", s.handleGetScans)

	if staticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(staticDir))))
	}
	return r
}

// zapLoggerMiddleware logs one line per request.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleSaveProfile(c *gin.Context) {
	var form models.ProfileForm
	if err := c.ShouldBindJSON(&form); err != nil {
		s.logger.Warn("invalid profile request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	profile, err := form.Parse()
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.ctrl.SubmitProfile(c.Request.Context(), profile); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleEditProfile(c *gin.Context) {
	if err := s.ctrl.EditProfile(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

type captureRequest struct {
	Image  string `json:"image"` // data URL or bare base64
	Source string `json:"source"`
}

// handleCapture accepts either a multipart upload (field "image") or a JSON
// body carrying a data URL.
func (s *Server) handleCapture(c *gin.Context) {
	var (
		blob models.ImageBlob
		ok   bool
		err  error
	)
	switch c.ContentType() {
	case gin.MIMEJSON:
		// base64 inflates the payload by 4/3; allow some room for the envelope.
		limit := int64(s.acquirer.MaxBytes)*4/3 + 4096
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		var req captureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": app.MessageInvalidImage, "kind": models.KindInvalidImage})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		blob, ok, err = s.acquirer.AcquireDataURL(models.ParseImageSource(req.Source), req.Image)
	case gin.MIMEMultipartPOSTForm:
		source := models.ParseImageSource(c.PostForm("source"))
		var data []byte
		data, err = readUpload(c, "image", s.acquirer.MaxBytes)
		if err == nil {
			blob, ok, err = s.acquirer.Acquire(source, data)
		}
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "use multipart/form-data or application/json"})
		return
	}
	if err != nil {
		s.logger.Info("capture rejected", zap.Error(err))
		s.writeError(c, err)
		return
	}
	if !ok {
		// Nothing selected.
		c.Status(http.StatusNoContent)
		return
	}

	if err := s.ctrl.Capture(c.Request.Context(), blob); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.ctrl.Reset(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleGetImage(c *gin.Context) {
	blob, ok := s.ctrl.Image()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no image"})
		return
	}
	c.Data(http.StatusOK, blob.MediaType, blob.Data)
}

func (s *Server) handleGetScans(c *gin.Context) {
	if s.scans == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan log disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	scans, err := s.scans.GetRecentScans(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list scans failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list scans"})
		return
	}
	if scans == nil {
		scans = []*models.Scan{}
	}
	c.JSON(http.StatusOK, gin.H{"items": scans})
}

// errorStatus maps intent errors to a status code and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidImage):
		return http.StatusUnprocessableEntity, app.MessageInvalidImage
	case errors.Is(err, models.ErrInvalidProfile):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, app.ErrAnalysisInFlight):
		return http.StatusConflict, "analysis in progress"
	case errors.Is(err, app.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg, "kind": models.ErrorKind(err)})
}
