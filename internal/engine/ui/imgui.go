// Package ui provides the ImGui window backend and viewport helpers.
package ui

import (
	"fmt"
	"os"

	"github.com/AllenDang/cimgui-go/backend"
	"github.com/AllenDang/cimgui-go/backend/sdlbackend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/go-gl/gl/v4.1-core/gl"
)

// glyphRanges covers Latin, Latin Supplement, Latin Extended and Cyrillic,
// enough for the author and title fields VRM files usually carry.
// Format: pairs of [start, end] values terminated by 0.
var glyphRanges = []imgui.Wchar{
	0x0020, 0x00FF, // Basic Latin + Latin Supplement
	0x0100, 0x024F, // Latin Extended-A/B
	0x0400, 0x04FF, // Cyrillic
	0x3000, 0x30FF, // CJK Symbols and Punctuation, Hiragana, Katakana
	0,              // Terminator
}

// fontPaths lists candidate UI fonts, first match wins.
var fontPaths = []string{
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",   // macOS
	"C:\\Windows\\Fonts\\segoeui.ttf",                        // Windows
	"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",    // Linux
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",        // Linux alt
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc", // Linux CJK
}

// Backend wraps the ImGui SDL backend and the GL context it owns.
type Backend struct {
	backend backend.Backend[sdlbackend.SDLWindowFlags]
	width   int32
	height  int32
}

// NewBackend creates the window and initializes OpenGL. Must be called on
// the locked main thread.
func NewBackend(title string, width, height int32, bg [4]float32) (*Backend, error) {
	b := &Backend{
		width:  width,
		height: height,
	}

	var err error
	b.backend, err = backend.CreateBackend(sdlbackend.NewSDLBackend())
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	// Fonts must be added before the first frame builds the atlas
	b.backend.SetAfterCreateContextHook(func() {
		b.loadFont()
	})

	b.backend.SetBgColor(imgui.NewVec4(bg[0], bg[1], bg[2], bg[3]))
	b.backend.CreateWindow(title, int(width), int(height))

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("init opengl: %w", err)
	}

	return b, nil
}

func (b *Backend) loadFont() {
	path := firstExisting(fontPaths)
	if path == "" {
		return
	}

	fontCfg := imgui.NewFontConfig()
	defer fontCfg.Destroy()

	imgui.CurrentIO().Fonts().AddFontFromFileTTFV(path, 16.0, fontCfg, &glyphRanges[0])
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Run starts the main render loop. It returns when the window closes.
func (b *Backend) Run(renderFunc func()) {
	b.backend.Run(renderFunc)
}

// SetWindowTitle updates the window title.
func (b *Backend) SetWindowTitle(title string) {
	b.backend.SetWindowTitle(title)
}

// WindowSize returns the size the window was created with.
func (b *Backend) WindowSize() (int32, int32) {
	return b.width, b.height
}

// Viewport returns the main viewport work area, which excludes the menu bar.
func Viewport() (posX, posY, width, height float32) {
	viewport := imgui.MainViewport()
	workPos := viewport.WorkPos()
	workSize := viewport.WorkSize()
	return workPos.X, workPos.Y, workSize.X, workSize.Y
}

// IsKeyPressed checks if a key was pressed this frame.
func IsKeyPressed(key imgui.Key) bool {
	return imgui.IsKeyChordPressed(imgui.KeyChord(key))
}

// IsChordPressed checks a modifier+key chord, e.g. imgui.ModCtrl with imgui.KeyO.
func IsChordPressed(mod imgui.Key, key imgui.Key) bool {
	return imgui.IsKeyChordPressed(imgui.KeyChord(mod) | imgui.KeyChord(key))
}
