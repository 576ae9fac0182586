// Package recording tracks capture sessions and feeds rendered frames to a
// sink while a session is running.
package recording

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/viewer"
)

// ErrInvalidTransition is returned for an action the current state does not
// allow, such as Start while already recording.
var ErrInvalidTransition = errors.New("recording: invalid transition")

// Output describes a finished recording.
type Output struct {
	ID       string
	Dir      string
	Frames   int
	Dropped  int
	Duration time.Duration
}

// State is a snapshot of the controller.
type State struct {
	Recording bool
	Paused    bool
	Duration  time.Duration
	// Output is set once when a session with a sink stops.
	Output *Output
}

// Idle reports whether no session is running.
func (s State) Idle() bool {
	return !s.Recording
}

// Session receives the frames of one recording.
type Session interface {
	WriteFrame(img *image.RGBA, at time.Duration) error
	Finish(duration time.Duration) (*Output, error)
}

// Sink opens a Session per recording.
type Sink interface {
	Open() (Session, error)
}

// Options configures a Controller.
type Options struct {
	// Sink receives frames. Without one the controller only keeps time.
	Sink Sink
	// FPS caps how many frames per second are captured.
	FPS    int
	Logger *zap.Logger
}

// Controller is the recording state machine. It implements
// viewer.FrameObserver so a viewer can drive it once per drawn frame.
type Controller struct {
	sink     Sink
	interval time.Duration
	log      *zap.Logger

	mu           sync.Mutex
	state        State
	session      Session
	sinceCapture time.Duration
	captureErrs  int
}

var _ viewer.FrameObserver = (*Controller)(nil)

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	return &Controller{
		sink:     opts.Sink,
		interval: time.Second / time.Duration(opts.FPS),
		log:      opts.Logger,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a session. Only legal while idle. The duration and any
// previous output are reset.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Recording {
		return fmt.Errorf("%w: start while recording", ErrInvalidTransition)
	}

	var session Session
	if c.sink != nil {
		var err error
		if session, err = c.sink.Open(); err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
	}

	c.session = session
	c.state = State{Recording: true}
	c.sinceCapture = c.interval
	c.captureErrs = 0

	c.log.Info("recording started", zap.Bool("capturing", session != nil))
	return nil
}

// TogglePause pauses or resumes a running session.
func (c *Controller) TogglePause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Recording {
		return fmt.Errorf("%w: pause while idle", ErrInvalidTransition)
	}
	c.state.Paused = !c.state.Paused
	c.log.Debug("recording paused", zap.Bool("paused", c.state.Paused))
	return nil
}

// Stop ends the session and freezes its duration. With a sink the session
// is finalized and Output is set.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Recording {
		return fmt.Errorf("%w: stop while idle", ErrInvalidTransition)
	}
	c.state.Recording = false
	c.state.Paused = false

	session := c.session
	c.session = nil
	if session == nil {
		c.log.Info("recording stopped", zap.Duration("duration", c.state.Duration))
		return nil
	}

	out, err := session.Finish(c.state.Duration)
	if err != nil {
		c.log.Error("finalize recording failed", zap.Error(err))
		return fmt.Errorf("finish recording: %w", err)
	}
	c.state.Output = out

	c.log.Info("recording stopped",
		zap.Duration("duration", c.state.Duration),
		zap.String("id", out.ID),
		zap.Int("frames", out.Frames),
		zap.Int("dropped", out.Dropped),
		zap.Int("capture_errors", c.captureErrs))
	return nil
}

// ObserveFrame advances the session clock and captures the frame when the
// capture interval has elapsed.
func (c *Controller) ObserveFrame(f viewer.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Recording || c.state.Paused {
		return
	}
	c.state.Duration += f.Delta

	if c.session == nil || f.Snapshot == nil {
		return
	}
	c.sinceCapture += f.Delta
	if c.sinceCapture < c.interval {
		return
	}
	c.sinceCapture -= c.interval
	if c.sinceCapture >= c.interval {
		// fell behind; don't try to catch up with a burst
		c.sinceCapture = 0
	}

	img, err := f.Snapshot()
	if err == nil {
		err = c.session.WriteFrame(img, c.state.Duration)
	}
	if err != nil {
		c.captureErrs++
		if c.captureErrs == 1 {
			c.log.Warn("frame capture failed", zap.Error(err))
		}
	}
}
