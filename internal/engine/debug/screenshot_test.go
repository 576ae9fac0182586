package debug

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/Faultbox/avatar-studio/internal/viewer"
)

func frameWith(img *image.RGBA, err error) viewer.Frame {
	return viewer.Frame{
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Snapshot: func() (*image.RGBA, error) { return img, err },
	}
}

func TestScreenshotCapturesOnceWhenArmed(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})

	var saved []string
	s := NewScreenshot(dir, "viewport", nil, func(path string, err error) {
		if err != nil {
			t.Errorf("capture error = %v", err)
		}
		saved = append(saved, path)
	})

	s.ObserveFrame(frameWith(img, nil))
	if len(saved) != 0 {
		t.Fatal("captured without a request")
	}

	s.Request()
	s.Request()
	if !s.Pending() {
		t.Fatal("Pending() = false after Request")
	}
	s.ObserveFrame(frameWith(img, nil))
	s.ObserveFrame(frameWith(img, nil))

	if len(saved) != 1 {
		t.Fatalf("captured %d times, want 1", len(saved))
	}
	if !strings.HasPrefix(saved[0], dir) || !strings.HasSuffix(saved[0], ".png") {
		t.Errorf("path = %q", saved[0])
	}

	f, err := os.Open(saved[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r, _, _, _ := got.At(1, 1).RGBA(); r>>8 != 200 {
		t.Errorf("pixel red = %d, want 200", r>>8)
	}
}

func TestScreenshotReportsSnapshotError(t *testing.T) {
	boom := errors.New("context lost")
	var gotErr error
	s := NewScreenshot(t.TempDir(), "viewport", nil, func(_ string, err error) { gotErr = err })

	s.Request()
	s.ObserveFrame(frameWith(image.NewRGBA(image.Rect(0, 0, 1, 1)), boom))

	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want %v", gotErr, boom)
	}
	if s.Pending() {
		t.Error("failed capture left the request armed")
	}
}
