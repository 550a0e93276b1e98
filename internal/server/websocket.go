package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/app"
	"github.com/franckalain/doctorfood/internal/models"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // served from the same origin as the static bundle
	},
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

func (cl *wsClient) write(v any) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteJSON(v)
}

// wsMessage is the envelope used in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &wsClient{id: uuid.New().String(), conn: conn}
	s.clients.Store(cl.id, cl)
	defer func() {
		s.clients.Delete(cl.id)
		conn.Close()
	}()
	s.logger.Debug("websocket client connected", zap.String("client_id", cl.id))

	s.send(cl, "state", s.ctrl.Snapshot())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("websocket read failed", zap.String("client_id", cl.id), zap.Error(err))
			}
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError(cl, "Invalid message format")
			continue
		}
		s.handleWebSocketMessage(c.Request.Context(), cl, msg)
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, cl *wsClient, msg wsMessage) {
	var err error
	switch msg.Type {
	case "get_state":
		s.send(cl, "state", s.ctrl.Snapshot())
		return
	case "save_profile":
		var form models.ProfileForm
		if err := json.Unmarshal(msg.Data, &form); err != nil {
			s.sendError(cl, "Invalid profile data")
			return
		}
		var p models.UserProfile
		if p, err = form.Parse(); err == nil {
			err = s.ctrl.SubmitProfile(ctx, p)
		}
	case "edit_profile":
		err = s.ctrl.EditProfile(ctx)
	case "capture":
		err = s.wsCapture(ctx, msg.Data)
	case "reset":
		err = s.ctrl.Reset()
	default:
		s.sendError(cl, "Unknown message type")
		return
	}
	if err != nil {
		_, text := errorStatus(err)
		s.sendError(cl, text)
	}
}

func (s *Server) wsCapture(ctx context.Context, data json.RawMessage) error {
	var req captureRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.ErrInvalidImage
	}
	blob, ok, err := s.acquirer.AcquireDataURL(models.ParseImageSource(req.Source), req.Image)
	if err != nil || !ok {
		return err
	}
	// The analysis outlives the socket read loop; the controller detaches it.
	return s.ctrl.Capture(ctx, blob)
}

// broadcastState pushes every state change to all connected clients.
func (s *Server) broadcastState(snap app.Snapshot) {
	s.clients.Range(func(_, value any) bool {
		s.send(value.(*wsClient), "state", snap)
		return true
	})
}

func (s *Server) send(cl *wsClient, messageType string, data any) {
	if err := cl.write(outMessage{Type: messageType, Data: data}); err != nil {
		s.logger.Debug("websocket write failed", zap.String("client_id", cl.id), zap.Error(err))
	}
}

func (s *Server) sendError(cl *wsClient, message string) {
	if err := cl.write(outMessage{Type: "error", Message: message}); err != nil {
		s.logger.Debug("websocket write failed", zap.String("client_id", cl.id), zap.Error(err))
	}
}
