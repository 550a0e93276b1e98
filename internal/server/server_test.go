package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/app"
	"github.com/franckalain/doctorfood/internal/imaging"
	"github.com/franckalain/doctorfood/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu      sync.Mutex
	profile *models.UserProfile
}

func (m *memStore) Load(ctx context.Context) (models.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return models.UserProfile{}, false
	}
	return *m.profile, true
}

func (m *memStore) Save(ctx context.Context, p models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = nil
	return nil
}

type gatedAnalyzer struct {
	release chan struct{}
	result  *models.AnalysisResult
	err     error
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.result, g.err
}

type mockScans struct {
	scans []*models.Scan
	limit int
}

func (m *mockScans) GetRecentScans(ctx context.Context, limit int) ([]*models.Scan, error) {
	m.limit = limit
	return m.scans, nil
}

var salad = &models.AnalysisResult{
	FoodName:            "سلطة خضراء",
	EstimatedWeight:     "200 جرام",
	Calories:            "150 سعرة",
	Healthiness:         "صحي",
	IsHealthy:           true,
	Rating:              9,
	HealthyAlternatives: []string{},
	Analysis:            "خضار طازجة",
}

type fixture struct {
	srv      *Server
	ctrl     *app.Controller
	store    *memStore
	analyzer *gatedAnalyzer
	scans    *mockScans
}

func newFixture(t *testing.T, profile *models.UserProfile) *fixture {
	t.Helper()
	store := &memStore{profile: profile}
	analyzer := &gatedAnalyzer{release: make(chan struct{}), result: salad}
	ctrl := app.New(context.Background(), store, analyzer)
	scans := &mockScans{}
	srv := New(ctrl, imaging.NewAcquirer(1<<20), scans, zap.NewNop(), "")
	t.Cleanup(func() {
		select {
		case <-analyzer.release:
		default:
			close(analyzer.release)
		}
		ctrl.Wait(context.Background())
		srv.Close()
	})
	return &fixture{srv: srv, ctrl: ctrl, store: store, analyzer: analyzer, scans: scans}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartCapture(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("source", "camera"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if data != nil {
		fw, err := mw.CreateFormFile(field, "meal.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/capture", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) app.Snapshot {
	t.Helper()
	var snap app.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v (body %s)", err, w.Body.String())
	}
	return snap
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestSaveProfile(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"age":"25","gender":"male","weight":"70"}`
	w := f.do(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.State != app.StateAwaitingCapture {
		t.Fatalf("state = %s", snap.State)
	}
	if p, ok := f.store.Load(context.Background()); !ok || p.Age != 25 {
		t.Fatalf("stored profile = %+v, %v", p, ok)
	}
}

func TestSaveProfileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"age out of range", `{"age":"0","gender":"male","weight":"70"}`},
		{"no gender", `{"age":"25","gender":"","weight":"70"}`},
		{"weight garbage", `{"age":"25","gender":"female","weight":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			w := f.do(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if f.ctrl.Snapshot().State != app.StateNoProfile {
				t.Fatalf("state changed to %s", f.ctrl.Snapshot().State)
			}
		})
	}
}

func TestCaptureMultipart(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})

	w := f.do(multipartCapture(t, "image", testPNG(t)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.State != app.StateAnalyzing {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Image == nil || snap.Image.MediaType != "image/png" || snap.Image.Source != models.SourceCamera {
		t.Fatalf("image info = %+v", snap.Image)
	}

	// A second capture while analyzing is refused.
	if w := f.do(multipartCapture(t, "image", testPNG(t))); w.Code != http.StatusConflict {
		t.Fatalf("second capture status = %d, want 409", w.Code)
	}

	img := f.do(httptest.NewRequest(http.MethodGet, "/api/image", nil))
	if img.Code != http.StatusOK || img.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("image = %d %s", img.Code, img.Header().Get("Content-Type"))
	}

	close(f.analyzer.release)
	if err := f.ctrl.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	state := decodeSnapshot(t, f.do(httptest.NewRequest(http.MethodGet, "/api/state", nil)))
	if state.State != app.StateResultReady || state.Result == nil || state.Result.FoodName != salad.FoodName {
		t.Fatalf("state = %+v", state)
	}
}

func TestCaptureNoFileIsCancel(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})
	w := f.do(multipartCapture(t, "image", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if f.ctrl.Snapshot().State != app.StateAwaitingCapture {
		t.Fatalf("state = %s", f.ctrl.Snapshot().State)
	}
}

func TestCaptureRejectsNonImage(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})
	w := f.do(multipartCapture(t, "image", []byte("%PDF-1.4 not a meal")))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != app.MessageInvalidImage || body["kind"] != models.KindInvalidImage {
		t.Fatalf("body = %v", body)
	}
	if f.ctrl.Snapshot().State != app.StateAwaitingCapture {
		t.Fatalf("state = %s", f.ctrl.Snapshot().State)
	}
}

func TestCaptureJSONDataURL(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 30, Gender: models.GenderFemale, Weight: 55.5})
	payload, _ := json.Marshal(captureRequest{
		Image:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t)),
		Source: "gallery",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if snap := decodeSnapshot(t, w); snap.Image == nil || snap.Image.Source != models.SourceGallery {
		t.Fatalf("image = %+v", snap.Image)
	}
}

func TestCaptureRejectsRawBody(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})
	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(testPNG(t)))
	req.Header.Set("Content-Type", "image/png")
	if w := f.do(req); w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}
	if f.ctrl.Snapshot().State != app.StateAwaitingCapture {
		t.Fatalf("state = %s", f.ctrl.Snapshot().State)
	}
}

func TestCaptureJSONBodyLimit(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})
	payload, _ := json.Marshal(captureRequest{Image: strings.Repeat("A", 2<<20), Source: "camera"})
	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if w := f.do(req); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if f.ctrl.Snapshot().State != app.StateAwaitingCapture {
		t.Fatalf("state = %s", f.ctrl.Snapshot().State)
	}
}

func TestCaptureWithoutProfile(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(multipartCapture(t, "image", testPNG(t))); w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestEditProfileAndReset(t *testing.T) {
	f := newFixture(t, &models.UserProfile{Age: 25, Gender: models.GenderMale, Weight: 70})
	close(f.analyzer.release)

	f.do(multipartCapture(t, "image", testPNG(t)))
	f.ctrl.Wait(context.Background())

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	if snap := decodeSnapshot(t, w); w.Code != http.StatusOK || snap.State != app.StateAwaitingCapture || snap.Result != nil {
		t.Fatalf("reset = %d %+v", w.Code, snap)
	}
	if img := f.do(httptest.NewRequest(http.MethodGet, "/api/image", nil)); img.Code != http.StatusNotFound {
		t.Fatalf("image after reset = %d", img.Code)
	}

	w = f.do(httptest.NewRequest(http.MethodDelete, "/api/profile", nil))
	if snap := decodeSnapshot(t, w); snap.State != app.StateNoProfile || snap.Profile != nil {
		t.Fatalf("edit = %+v", snap)
	}
	if _, ok := f.store.Load(context.Background()); ok {
		t.Fatal("profile still stored")
	}
}

func TestScans(t *testing.T) {
	f := newFixture(t, nil)
	f.scans.scans = []*models.Scan{{ID: "a", Status: models.ScanCompleted}}

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/scans?limit=5", nil))
	if w.Code != http.StatusOK || f.scans.limit != 5 {
		t.Fatalf("scans = %d, limit %d", w.Code, f.scans.limit)
	}
	if !strings.Contains(w.Body.String(), `"items"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/scans?limit=x", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) outMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var raw struct {
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read: %v", err)
	}
	msg := outMessage{Type: raw.Type, Message: raw.Message}
	if raw.Type == "state" {
		var snap app.Snapshot
		if err := json.Unmarshal(raw.Data, &snap); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		msg.Data = snap
	}
	return msg
}

// waitState reads until a state message with the wanted state arrives.
func waitState(t *testing.T, conn *websocket.Conn, want app.State) app.Snapshot {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type != "state" {
			continue
		}
		if snap := msg.Data.(app.Snapshot); snap.State == want {
			return snap
		}
	}
	t.Fatalf("never saw state %s", want)
	return app.Snapshot{}
}

func TestWebSocketFlow(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if snap := waitState(t, conn, app.StateNoProfile); snap.Cycle != 0 {
		t.Fatalf("initial cycle = %d", snap.Cycle)
	}

	conn.WriteJSON(map[string]any{"type": "save_profile", "data": map[string]string{"age": "25", "gender": "male", "weight": "70"}})
	waitState(t, conn, app.StateAwaitingCapture)

	conn.WriteJSON(map[string]any{"type": "capture", "data": map[string]string{
		"image":  base64.StdEncoding.EncodeToString(testPNG(t)),
		"source": "camera",
	}})
	waitState(t, conn, app.StateAnalyzing)

	close(f.analyzer.release)
	snap := waitState(t, conn, app.StateResultReady)
	if snap.Result == nil || snap.Result.Rating != 9 {
		t.Fatalf("result = %+v", snap.Result)
	}

	conn.WriteJSON(map[string]any{"type": "bogus"})
	if msg := readMessage(t, conn); msg.Type != "error" || msg.Message != "Unknown message type" {
		t.Fatalf("msg = %+v", msg)
	}
}
