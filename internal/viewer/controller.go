// Package viewer runs the avatar viewport: it binds one renderer and camera
// to a host surface, drives the frame loop, keeps the viewport size in sync
// with the surface and swaps avatar bundles in and out of the scene.
//
// A Controller is not safe for concurrent use. Call it from the goroutine
// that flushes its Scheduler.
package viewer

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/engine/camera"
	"github.com/Faultbox/avatar-studio/internal/engine/frame"
	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

// Options configures a Controller.
type Options struct {
	NewRenderer RendererFactory
	Scheduler   Scheduler
	Logger      *zap.Logger

	Camera     CameraOptions
	Lights     scene.Lights
	Background mgl32.Vec4

	// OnError is called when the loop stops because a draw failed.
	OnError func(err error)
}

// Controller owns the viewport state for one mounted surface.
type Controller struct {
	opts Options
	log  *zap.Logger

	surface  Surface
	renderer Renderer
	camera   *camera.Camera
	scene    *scene.Scene
	bundle   *scene.Bundle

	handle frame.Handle
	live   bool
	// gen changes on every Initialize so a tick from an earlier
	// initialization can tell it has been superseded.
	gen uint64

	width, height int

	ticked   bool
	start    time.Duration
	lastTick time.Duration
	frames   uint64
	err      error

	observers []FrameObserver
}

// New creates a controller. Nothing is allocated until Initialize.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Camera == (CameraOptions{}) {
		opts.Camera = DefaultCameraOptions()
	}
	return &Controller{
		opts: opts,
		log:  opts.Logger,
	}
}

// Initialize binds the controller to surface, creates the renderer and the
// camera and schedules the first frame. Calling it on a live controller
// disposes the previous state first.
func (c *Controller) Initialize(surface Surface, width, height int) error {
	if c.live {
		c.log.Debug("reinitializing live viewport")
		c.Dispose()
	}

	if surface == nil {
		return ErrSurfaceUnavailable
	}
	ctx := surface.DrawContext()
	if ctx == nil {
		return ErrSurfaceUnavailable
	}

	width, height = clampSize(width, height)
	r, err := c.opts.NewRenderer(ctx, width, height)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	cam := c.opts.Camera
	c.camera = camera.New(cam.FOVDegrees, float32(width)/float32(height), cam.Near, cam.Far, cam.Position, cam.Target)

	c.scene = scene.New(c.opts.Lights)
	c.scene.Background = c.opts.Background

	c.surface = surface
	c.renderer = r
	c.width, c.height = width, height
	c.ticked = false
	c.frames = 0
	c.err = nil
	c.live = true
	c.gen++

	c.handle = c.opts.Scheduler.RequestFrame(c.tick)

	c.log.Debug("viewport initialized",
		zap.String("context", ctx.Version()),
		zap.Int("width", width),
		zap.Int("height", height))
	return nil
}

// LoadBundle makes b the displayed avatar. The previous bundle is detached
// and released before b is attached. On a controller that is not live the
// bundle is released and ErrNotInitialized is returned.
func (c *Controller) LoadBundle(b *scene.Bundle) error {
	if b == nil || b.Root == nil {
		return ErrNilBundle
	}
	if !c.live {
		b.Release()
		return ErrNotInitialized
	}
	if b == c.bundle {
		return nil
	}

	c.releaseBundle()
	c.scene.Attach(b.Root)
	c.bundle = b

	c.log.Debug("bundle attached", zap.String("name", b.Name), zap.Bool("posed", b.Pose != nil))
	return nil
}

// Unload detaches and releases the displayed bundle, if any.
func (c *Controller) Unload() {
	if c.live {
		c.releaseBundle()
	}
}

func (c *Controller) releaseBundle() {
	old := c.bundle
	if old == nil {
		return
	}
	c.bundle = nil
	c.scene.Detach(old.Root)
	c.renderer.Release(old.Root)
	old.Release()
	c.log.Debug("bundle released", zap.String("name", old.Name))
}

// Resize applies a new output size. Dimensions are clamped to at least 1
// and an unchanged size does nothing.
func (c *Controller) Resize(width, height int) {
	if !c.live {
		return
	}
	width, height = clampSize(width, height)
	if width == c.width && height == c.height {
		return
	}

	c.renderer.Resize(width, height)
	c.camera.SetAspect(float32(width) / float32(height))
	c.width, c.height = width, height

	c.log.Debug("viewport resized", zap.Int("width", width), zap.Int("height", height))
}

// tick is the frame loop body: resize check, pose, draw, observers,
// reschedule.
func (c *Controller) tick(now time.Duration) {
	c.handle = 0
	if !c.live {
		return
	}
	gen := c.gen

	c.Resize(c.surface.Size())

	var delta time.Duration
	if !c.ticked {
		c.ticked = true
		c.start = now
	} else if now > c.lastTick {
		delta = now - c.lastTick
	}
	c.lastTick = now

	if c.bundle != nil && c.bundle.Pose != nil {
		c.bundle.Pose(delta.Seconds())
		if !c.current(gen) {
			return
		}
	}

	if err := c.renderer.Render(c.scene, c.camera); err != nil {
		c.fail(err)
		return
	}
	c.frames++

	if len(c.observers) > 0 {
		r := c.renderer
		f := Frame{
			Elapsed:  now - c.start,
			Delta:    delta,
			Width:    c.width,
			Height:   c.height,
			Snapshot: r.Snapshot,
		}
		for _, o := range c.observers {
			if !slices.Contains(c.observers, o) {
				continue
			}
			o.ObserveFrame(f)
			if !c.current(gen) {
				return
			}
		}
	}

	c.handle = c.opts.Scheduler.RequestFrame(c.tick)
}

// current reports whether the loop started by initialization gen is still
// the live one.
func (c *Controller) current(gen uint64) bool {
	return c.live && c.gen == gen
}

func (c *Controller) fail(err error) {
	c.err = fmt.Errorf("render frame %d: %w", c.frames+1, err)
	c.log.Error("render loop stopped", zap.Error(err), zap.Uint64("frames", c.frames))
	if c.opts.OnError != nil {
		c.opts.OnError(c.err)
	}
}

// Dispose stops the loop and releases the bundle, renderer and camera.
// Calling it on a disposed or never initialized controller does nothing.
func (c *Controller) Dispose() {
	if !c.live {
		return
	}

	if c.handle != 0 {
		c.opts.Scheduler.CancelFrame(c.handle)
		c.handle = 0
	}

	c.releaseBundle()
	c.renderer.Close()

	c.live = false
	c.renderer = nil
	c.camera = nil
	c.scene = nil
	c.surface = nil

	c.log.Debug("viewport disposed", zap.Uint64("frames", c.frames))
}

// AddObserver registers o to be notified after every drawn frame.
func (c *Controller) AddObserver(o FrameObserver) {
	c.observers = append(c.observers, o)
}

// RemoveObserver unregisters o. Removing an observer from inside
// ObserveFrame takes effect immediately: o is not notified again, and the
// remaining observers still see the current frame once each.
func (c *Controller) RemoveObserver(o FrameObserver) {
	i := slices.Index(c.observers, o)
	if i < 0 {
		return
	}
	c.observers = slices.Delete(slices.Clone(c.observers), i, i+1)
}

// Err returns the error that stopped the loop, if any.
func (c *Controller) Err() error {
	return c.err
}

// Camera returns the live camera, or nil when not initialized.
func (c *Controller) Camera() *camera.Camera {
	return c.camera
}

// Scene returns the root scene, or nil when not initialized.
func (c *Controller) Scene() *scene.Scene {
	return c.scene
}

// Bundle returns the displayed bundle, if any.
func (c *Controller) Bundle() *scene.Bundle {
	return c.bundle
}

// Stats reports the controller's current state.
func (c *Controller) Stats() Stats {
	return Stats{
		Live:      c.live,
		Running:   c.handle != 0,
		HasBundle: c.bundle != nil,
		Frames:    c.frames,
		Width:     c.width,
		Height:    c.height,
	}
}

func clampSize(width, height int) (int, int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}
