package viewer

import (
	"errors"
	"image"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/avatar-studio/internal/engine/camera"
	"github.com/Faultbox/avatar-studio/internal/engine/frame"
	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

var (
	// ErrSurfaceUnavailable is returned by Initialize when the surface cannot
	// provide a drawing context.
	ErrSurfaceUnavailable = errors.New("viewer: surface has no drawing context")

	// ErrNotInitialized is returned by operations that need a live viewport.
	ErrNotInitialized = errors.New("viewer: not initialized")

	// ErrNilBundle is returned by LoadBundle when given no bundle or a bundle without a root.
	ErrNilBundle = errors.New("viewer: nil bundle")
)

// DrawContext is whatever the surface hands the renderer factory to draw with.
type DrawContext interface {
	Version() string
}

// Surface is the host-owned drawable the viewer is bound to. The viewer reads
// its size every frame and never changes it.
type Surface interface {
	Size() (width, height int)
	// DrawContext returns nil when the surface cannot be drawn to.
	DrawContext() DrawContext
}

// Scheduler is the one-shot frame primitive driving the loop.
type Scheduler interface {
	RequestFrame(fn frame.Callback) frame.Handle
	CancelFrame(h frame.Handle)
}

// Renderer draws a scene through a camera into the surface.
type Renderer interface {
	Resize(width, height int)
	Render(s *scene.Scene, cam *camera.Camera) error
	// Release frees GPU resources held for the subtree rooted at n.
	Release(n *scene.Node)
	// Snapshot reads back the last rendered frame.
	Snapshot() (*image.RGBA, error)
	Close()
}

// RendererFactory creates the renderer for a drawing context.
type RendererFactory func(ctx DrawContext, width, height int) (Renderer, error)

// CameraOptions places the camera created by Initialize.
type CameraOptions struct {
	FOVDegrees float32
	Near       float32
	Far        float32
	Position   mgl32.Vec3
	Target     mgl32.Vec3
}

// DefaultCameraOptions frames a 1.6m avatar standing at the origin.
func DefaultCameraOptions() CameraOptions {
	return CameraOptions{
		FOVDegrees: 30,
		Near:       0.1,
		Far:        20,
		Position:   mgl32.Vec3{0, 1.2, 4.5},
		Target:     mgl32.Vec3{0, 0.9, 0},
	}
}

// Frame describes one drawn frame to observers.
type Frame struct {
	Elapsed time.Duration // since the first tick
	Delta   time.Duration // since the previous tick
	Width   int
	Height  int

	// Snapshot reads back this frame. Only valid during ObserveFrame.
	Snapshot func() (*image.RGBA, error)
}

// FrameObserver is notified after every successful draw.
type FrameObserver interface {
	ObserveFrame(f Frame)
}

// Stats is a point-in-time view of the controller.
type Stats struct {
	Live      bool
	Running   bool // a frame is scheduled
	HasBundle bool
	Frames    uint64
	Width     int
	Height    int
}
