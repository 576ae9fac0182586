package devices

import (
	"context"
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

// SDLSource lists audio capture devices through SDL.
type SDLSource struct {
	// Do runs fn on the thread that owns SDL and waits for it to return.
	// When SDL runs an event loop on another thread, Do must hand fn to
	// that thread. Nil calls fn directly.
	Do func(ctx context.Context, fn func()) error
}

// Devices returns capture devices in SDL's order. SDL identifies capture
// devices by name only, so the name is also the id.
func (s SDLSource) Devices(ctx context.Context) ([]DeviceDescriptor, error) {
	var (
		names []string
		err   error
	)
	list := func() { names, err = audioCaptureNames() }

	if s.Do == nil {
		list()
	} else if doErr := s.Do(ctx, list); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		return nil, err
	}
	return microphones(names), nil
}

func audioCaptureNames() ([]string, error) {
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	defer sdl.QuitSubSystem(sdl.INIT_AUDIO)

	n := sdl.GetNumAudioDevices(true)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, sdl.GetAudioDeviceName(i, true))
	}
	return names, nil
}

// microphones turns SDL names into descriptors, dropping blanks and duplicates.
func microphones(names []string) []DeviceDescriptor {
	seen := make(map[string]bool, len(names))
	var out []DeviceDescriptor
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, DeviceDescriptor{ID: name, Label: name, Kind: KindMicrophone})
	}
	return out
}
