// Package debug provides developer aids for the viewport.
package debug

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/viewer"
)

const stampLayout = "2006-01-02_15-04-05.000"

// Screenshot saves the next drawn viewport frame as a PNG once armed.
// It is a viewer.FrameObserver.
type Screenshot struct {
	outputDir string
	prefix    string
	log       *zap.Logger
	done      func(path string, err error)

	mu    sync.Mutex
	armed bool
}

var _ viewer.FrameObserver = (*Screenshot)(nil)

// NewScreenshot creates a capture handler writing into outputDir. done, if
// set, is called with the saved path or the error after each capture.
func NewScreenshot(outputDir, prefix string, log *zap.Logger, done func(path string, err error)) *Screenshot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Screenshot{
		outputDir: outputDir,
		prefix:    prefix,
		log:       log,
		done:      done,
	}
}

// Request arms a capture of the next frame. Repeated requests before that
// frame collapse into one.
func (s *Screenshot) Request() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

// Pending reports whether a capture is armed.
func (s *Screenshot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// ObserveFrame captures f when armed.
func (s *Screenshot) ObserveFrame(f viewer.Frame) {
	s.mu.Lock()
	armed := s.armed
	s.armed = false
	s.mu.Unlock()
	if !armed {
		return
	}

	img, err := f.Snapshot()
	var path string
	if err == nil {
		path, err = s.Save(img)
	}
	if err != nil {
		s.log.Error("screenshot failed", zap.Error(err))
	} else {
		s.log.Info("screenshot saved", zap.String("path", path), zap.Int("width", f.Width), zap.Int("height", f.Height))
	}
	if s.done != nil {
		s.done(path, err)
	}
}

// Save writes img to a timestamped file and returns its path.
func (s *Screenshot) Save(img image.Image) (string, error) {
	if s.outputDir != "" {
		if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	filename := s.GenerateFilename()
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return filename, nil
}

// GenerateFilename returns the path the next capture would use.
func (s *Screenshot) GenerateFilename() string {
	filename := fmt.Sprintf("%s_%s.png", s.prefix, time.Now().Format(stampLayout))
	if s.outputDir != "" {
		filename = filepath.Join(s.outputDir, filename)
	}
	return filename
}
