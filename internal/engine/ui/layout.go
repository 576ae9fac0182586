package ui

// Rect is a panel placement in screen pixels.
type Rect struct {
	X, Y, W, H float32
}

// Layout places the fixed panels of the main window.
type Layout struct {
	Left     Rect // devices and model
	Viewport Rect
	Right    Rect // recording
	Status   Rect
}

// Panel widths used by ComputeLayout.
const (
	LeftPanelWidth  = float32(300)
	RightPanelWidth = float32(240)
	StatusBarHeight = float32(30)
	minViewport     = float32(64)
)

// ComputeLayout splits the work area into side panels, a central viewport
// and a status bar. Side panels shrink before the viewport drops below a
// usable size.
func ComputeLayout(x, y, w, h float32) Layout {
	contentH := max(h-StatusBarHeight, 0)

	left, right := LeftPanelWidth, RightPanelWidth
	if spare := w - minViewport; left+right > spare {
		scale := max(spare, 0) / (left + right)
		left, right = left*scale, right*scale
	}
	center := max(w-left-right, 0)

	return Layout{
		Left:     Rect{X: x, Y: y, W: left, H: contentH},
		Viewport: Rect{X: x + left, Y: y, W: center, H: contentH},
		Right:    Rect{X: x + left + center, Y: y, W: right, H: contentH},
		Status:   Rect{X: x, Y: y + contentH, W: w, H: StatusBarHeight},
	}
}
