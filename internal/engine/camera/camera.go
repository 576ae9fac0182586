// Package camera provides the perspective camera used by the avatar viewport.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera that orbits a target point.
type Camera struct {
	FovY   float32 // Vertical field of view (radians)
	Aspect float32
	Near   float32
	Far    float32

	Target mgl32.Vec3

	// Spherical coordinates around Target
	Distance float32
	Pitch    float32 // radians, positive looks down
	Yaw      float32 // radians, 0 looks along -Z

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	home struct {
		distance, pitch, yaw float32
		target               mgl32.Vec3
	}
}

// New creates a camera at position looking at target.
func New(fovDegrees, aspect, near, far float32, position, target mgl32.Vec3) *Camera {
	c := &Camera{
		FovY:            mgl32.DegToRad(fovDegrees),
		Near:            near,
		Far:             far,
		Target:          target,
		MinDistance:     0.3,
		MaxDistance:     15,
		MinPitch:        -1.4,
		MaxPitch:        1.4,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
	c.SetAspect(aspect)

	offset := position.Sub(target)
	c.Distance = offset.Len()
	if c.Distance > 0 {
		c.Pitch = float32(gomath.Asin(float64(offset.Y() / c.Distance)))
		c.Yaw = float32(gomath.Atan2(float64(offset.X()), float64(offset.Z())))
	}
	if c.Distance > c.MaxDistance {
		c.MaxDistance = c.Distance
	}

	c.home.distance, c.home.pitch, c.home.yaw, c.home.target = c.Distance, c.Pitch, c.Yaw, c.Target
	return c
}

// SetAspect updates the aspect ratio. Non-positive values become 1.
func (c *Camera) SetAspect(aspect float32) {
	if aspect <= 0 || gomath.IsNaN(float64(aspect)) || gomath.IsInf(float64(aspect), 0) {
		aspect = 1
	}
	c.Aspect = aspect
}

// Position returns the camera position in world space.
func (c *Camera) Position() mgl32.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.Pitch))*gomath.Sin(float64(c.Yaw)))
	y := c.Distance * float32(gomath.Sin(float64(c.Pitch)))
	z := c.Distance * float32(gomath.Cos(float64(c.Pitch))*gomath.Cos(float64(c.Yaw)))
	return c.Target.Add(mgl32.Vec3{x, y, z})
}

// Projection returns the perspective projection matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

// View returns the view matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Target, mgl32.Vec3{0, 1, 0})
}

// ViewProjection returns Projection * View.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

// HandleDrag orbits the camera by a mouse drag delta in pixels.
func (c *Camera) HandleDrag(deltaX, deltaY float32) {
	c.Yaw -= deltaX * c.DragSensitivity
	c.Pitch += deltaY * c.DragSensitivity

	if c.Pitch < c.MinPitch {
		c.Pitch = c.MinPitch
	}
	if c.Pitch > c.MaxPitch {
		c.Pitch = c.MaxPitch
	}
}

// HandleZoom moves the camera toward or away from the target.
func (c *Camera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
}

// Reset returns the camera to the placement it was created with.
func (c *Camera) Reset() {
	c.Distance, c.Pitch, c.Yaw, c.Target = c.home.distance, c.home.pitch, c.home.yaw, c.home.target
}
