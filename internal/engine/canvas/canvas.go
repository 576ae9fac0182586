// Package canvas is the host side of the viewport: a drawable area whose
// size comes from the UI layout and whose pixels arrive as a GL texture.
package canvas

import (
	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/avatar-studio/internal/viewer"
)

// Canvas is owned by the UI. The layout writes its size every frame; the
// renderer writes its texture.
type Canvas struct {
	width, height int

	ready     bool
	glVersion func() string

	texture        uint32
	texW, texH     int
	presentedCount uint64
}

// New creates a canvas with no drawing context yet.
func New() *Canvas {
	return &Canvas{glVersion: glVersion}
}

// MarkReady records that a GL context is current and gl.Init succeeded.
func (c *Canvas) MarkReady() {
	c.ready = true
}

// SetLayoutSize records the pixel size the layout assigned to the viewport.
func (c *Canvas) SetLayoutSize(width, height int) {
	c.width, c.height = max(width, 0), max(height, 0)
}

// Size returns the last layout size.
func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// DrawContext returns the canvas as a drawing context, or nil when no GL
// context is available.
func (c *Canvas) DrawContext() viewer.DrawContext {
	if !c.ready || c.glVersion() == "" {
		return nil
	}
	return c
}

// Version reports the GL version string of the current context.
func (c *Canvas) Version() string {
	return c.glVersion()
}

// Present stores the texture holding the latest frame.
func (c *Canvas) Present(texture uint32, width, height int) {
	c.texture, c.texW, c.texH = texture, width, height
	c.presentedCount++
}

// Texture returns the latest presented texture and its size. The texture is
// 0 until the first frame is presented.
func (c *Canvas) Texture() (id uint32, width, height int) {
	return c.texture, c.texW, c.texH
}

// Presented returns how many frames have been presented.
func (c *Canvas) Presented() uint64 {
	return c.presentedCount
}

// Clear forgets the presented texture. Call it when the renderer that owned
// the texture is closed.
func (c *Canvas) Clear() {
	c.texture, c.texW, c.texH = 0, 0, 0
}

func glVersion() string {
	v := gl.GetString(gl.VERSION)
	if v == nil {
		return ""
	}
	return gl.GoStr(v)
}
