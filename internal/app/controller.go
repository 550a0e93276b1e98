// Package app holds the screen state machine: profile, capture, analysis, result.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/franckalain/doctorfood/internal/models"
	"github.com/franckalain/doctorfood/internal/prompt"
)

var (
	// ErrInvalidTransition: the intent is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAnalysisInFlight: an analysis is running; the intent was ignored.
	ErrAnalysisInFlight = errors.New("analysis in flight")
)

// ProfileStore persists the single user profile.
type ProfileStore interface {
	Load(ctx context.Context) (models.UserProfile, bool)
	Save(ctx context.Context, p models.UserProfile) error
	Clear(ctx context.Context) error
}

// Analyzer runs one inference request.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
}

// ScanRecorder keeps a diagnostic trail of analysis cycles.
type ScanRecorder interface {
	SaveScan(ctx context.Context, scan *models.Scan) error
	UpdateScanStatus(ctx context.Context, id, status, errKind, errMsg, foodName string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithScanRecorder records every cycle.
func WithScanRecorder(r ScanRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithAnalysisTimeout bounds one inference call. Zero leaves it to the transport.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// Controller owns the profile, the current image and its result. All intents
// go through it and are serialized by its mutex; at most one analysis runs.
type Controller struct {
	store    ProfileStore
	analyzer Analyzer
	recorder ScanRecorder
	logger   *zap.Logger
	timeout  time.Duration

	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     State
	profile   *models.UserProfile
	image     *models.ImageBlob
	result    *models.AnalysisResult
	errKind   string
	errMsg    string
	cycle     uint64
	done      chan struct{}
	listeners map[int]func(Snapshot)
	nextID    int
}

// New loads the stored profile and picks the initial state from it.
func New(ctx context.Context, store ProfileStore, analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		analyzer:  analyzer,
		logger:    zap.NewNop(),
		state:     StateNoProfile,
		listeners: map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(c)
	}
	if p, ok := store.Load(ctx); ok {
		c.profile = &p
		c.state = StateAwaitingCapture
	}
	c.logger.Info("controller started", zap.String("state", string(c.state)))
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Image returns the image of the current cycle, if any.
func (c *Controller) Image() (models.ImageBlob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.image == nil {
		return models.ImageBlob{}, false
	}
	return *c.image, true
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn is called without the controller lock held. It must not block for long
// and must not call back into intents (SubmitProfile, Capture, Reset, EditProfile).
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SubmitProfile stores a new profile: no_profile -> awaiting_capture.
func (c *Controller) SubmitProfile(ctx context.Context, p models.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateNoProfile {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: submit profile in %s", ErrInvalidTransition, state)
	}
	if err := c.store.Save(ctx, p); err != nil {
		c.mu.Unlock()
		return err
	}
	c.profile = &p
	c.state = StateAwaitingCapture
	c.mu.Unlock()

	c.logger.Info("profile saved", zap.Int("age", p.Age), zap.String("gender", string(p.Gender)))
	c.notify()
	return nil
}

// EditProfile clears the stored profile and returns to the profile form.
func (c *Controller) EditProfile(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateAwaitingCapture, StateResultReady, StateAnalysisFailed:
	case StateAnalyzing:
		c.mu.Unlock()
		return ErrAnalysisInFlight
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: edit profile in %s", ErrInvalidTransition, state)
	}
	if err := c.store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.profile = nil
	c.clearCycleLocked()
	c.state = StateNoProfile
	c.mu.Unlock()

	c.logger.Info("profile cleared")
	c.notify()
	return nil
}

// Reset drops the image and result of the finished cycle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	switch c.state {
	case StateResultReady, StateAnalysisFailed:
	case StateAwaitingCapture:
		c.mu.Unlock()
		return nil
	case StateAnalyzing:
		c.mu.Unlock()
		return ErrAnalysisInFlight
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: reset in %s", ErrInvalidTransition, state)
	}
	c.clearCycleLocked()
	c.state = StateAwaitingCapture
	c.mu.Unlock()

	c.notify()
	return nil
}

// Capture starts analyzing image: awaiting_capture -> analyzing. The call
// returns once the transition is made; the outcome arrives as a later
// transition. A capture while analyzing is ignored with ErrAnalysisInFlight.
func (c *Controller) Capture(ctx context.Context, image models.ImageBlob) error {
	c.mu.Lock()
	switch c.state {
	case StateAwaitingCapture:
	case StateAnalyzing:
		c.mu.Unlock()
		return ErrAnalysisInFlight
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: capture in %s", ErrInvalidTransition, state)
	}

	c.clearCycleLocked()
	c.cycle++
	c.image = &image
	c.state = StateAnalyzing
	c.done = make(chan struct{})
	cycle, done := c.cycle, c.done
	req := prompt.Build(image, *c.profile)
	c.mu.Unlock()

	c.notify()

	// The provider has no cancellation; the call outlives the caller's request.
	runCtx := context.WithoutCancel(ctx)
	go c.run(runCtx, cycle, done, req)
	return nil
}

// Wait blocks until no analysis is in flight. A cycle counts as in flight
// until its scan record is written and subscribers have been notified.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, cycle uint64, done chan struct{}, req models.AnalysisRequest) {
	defer close(done)

	scanID := uuid.NewString()
	c.recordStart(ctx, scanID, req.Image)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.analyzer.Analyze(callCtx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrInferenceUnavailable) {
		err = fmt.Errorf("%w: %v", models.ErrInferenceUnavailable, err)
	}
	if err == nil && result == nil {
		err = fmt.Errorf("%w: empty result", models.ErrMalformedResponse)
	}

	c.mu.Lock()
	if c.cycle != cycle || c.state != StateAnalyzing {
		// Abandoned cycle; its outcome belongs to nobody.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.errKind = models.ErrorKind(err)
		c.errMsg = userMessage(c.errKind)
		c.state = StateAnalysisFailed
	} else {
		c.result = result
		c.state = StateResultReady
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("analysis failed",
			zap.Uint64("cycle", cycle),
			zap.String("kind", models.ErrorKind(err)),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
	} else {
		c.logger.Info("analysis ready",
			zap.Uint64("cycle", cycle),
			zap.String("food", result.FoodName),
			zap.Bool("healthy", result.IsHealthy),
			zap.Float64("rating", result.Rating),
			zap.Duration("latency", time.Since(start)),
		)
	}
	c.recordFinish(ctx, scanID, result, err)
	c.notify()
}

func (c *Controller) recordStart(ctx context.Context, id string, image models.ImageBlob) {
	if c.recorder == nil {
		return
	}
	scan := &models.Scan{
		ID:        id,
		Status:    models.ScanAnalyzing,
		MediaType: image.MediaType,
		ImageSize: len(image.Data),
	}
	if err := c.recorder.SaveScan(ctx, scan); err != nil {
		c.logger.Warn("record scan failed", zap.String("scan_id", id), zap.Error(err))
	}
}

func (c *Controller) recordFinish(ctx context.Context, id string, result *models.AnalysisResult, err error) {
	if c.recorder == nil {
		return
	}
	status, kind, msg, food := models.ScanCompleted, "", "", ""
	if err != nil {
		status, kind, msg = models.ScanFailed, models.ErrorKind(err), err.Error()
	} else {
		food = result.FoodName
	}
	if err := c.recorder.UpdateScanStatus(ctx, id, status, kind, msg, food); err != nil {
		c.logger.Warn("update scan failed", zap.String("scan_id", id), zap.Error(err))
	}
}

func (c *Controller) clearCycleLocked() {
	c.image = nil
	c.result = nil
	c.errKind = ""
	c.errMsg = ""
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        c.state,
		Result:       c.result,
		ErrorMessage: c.errMsg,
		ErrorKind:    c.errKind,
		Cycle:        c.cycle,
	}
	if c.profile != nil {
		p := *c.profile
		s.Profile = &p
	}
	if c.image != nil {
		s.Image = &ImageInfo{
			MediaType: c.image.MediaType,
			Size:      len(c.image.Data),
			Source:    c.image.Source,
		}
	}
	return s
}

// notify sends the current snapshot to every subscriber. Notifications are
// serialized, so subscribers never see an older state after a newer one.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
