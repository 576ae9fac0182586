// Package devices enumerates capture devices and tracks the user's camera
// and microphone selection.
package devices

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrPermissionDenied is returned when the platform refuses access to a
	// capture device.
	ErrPermissionDenied = errors.New("devices: permission denied")

	// ErrUnknownDevice is returned when selecting an id that is not in the
	// current inventory.
	ErrUnknownDevice = errors.New("devices: unknown device")
)

// Kind distinguishes cameras from microphones.
type Kind int

const (
	KindCamera Kind = iota
	KindMicrophone
)

func (k Kind) String() string {
	switch k {
	case KindCamera:
		return "camera"
	case KindMicrophone:
		return "microphone"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DeviceDescriptor describes one capture device.
type DeviceDescriptor struct {
	ID    string
	Label string
	Kind  Kind
	// Path is the device node, if the device has one.
	Path string
}

// Inventory is a snapshot of the available devices. An empty selection
// means nothing of that kind is selected.
type Inventory struct {
	Cameras            []DeviceDescriptor
	Microphones        []DeviceDescriptor
	SelectedCamera     string
	SelectedMicrophone string
}

// Camera returns the selected camera.
func (inv Inventory) Camera() (DeviceDescriptor, bool) {
	return find(inv.Cameras, inv.SelectedCamera)
}

// Microphone returns the selected microphone.
func (inv Inventory) Microphone() (DeviceDescriptor, bool) {
	return find(inv.Microphones, inv.SelectedMicrophone)
}

func find(list []DeviceDescriptor, id string) (DeviceDescriptor, bool) {
	for _, d := range list {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceDescriptor{}, false
}

// Source lists devices of one kind.
type Source interface {
	Devices(ctx context.Context) ([]DeviceDescriptor, error)
}

// Options configures a Catalog.
type Options struct {
	Cameras     Source
	Microphones Source

	// Access checks that a device node is readable. Defaults to unix.Access.
	Access func(path string) error

	// PreferredCamera and PreferredMicrophone seed the selection.
	PreferredCamera     string
	PreferredMicrophone string

	Logger *zap.Logger
}

// Catalog holds the latest inventory. It is safe for concurrent use.
type Catalog struct {
	cameras     Source
	microphones Source
	access      func(string) error
	log         *zap.Logger

	mu        sync.Mutex
	inv       Inventory
	selCamera string
	selMic    string
}

// NewCatalog creates a catalog. Nil sources enumerate nothing.
func NewCatalog(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Access == nil {
		opts.Access = readable
	}
	return &Catalog{
		cameras:     opts.Cameras,
		microphones: opts.Microphones,
		access:      opts.Access,
		log:         opts.Logger,
		selCamera:   opts.PreferredCamera,
		selMic:      opts.PreferredMicrophone,
	}
}

func readable(path string) error {
	return unix.Access(path, unix.R_OK)
}

func isPermission(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, fs.ErrPermission)
}

// Enumerate rebuilds the inventory. The previous selection of each kind is
// kept when that device is still present; otherwise the first device is
// selected. When a camera node is not readable the inventory is empty and
// the error wraps ErrPermissionDenied.
func (c *Catalog) Enumerate(ctx context.Context) (Inventory, error) {
	cams, err := list(ctx, c.cameras)
	if err != nil {
		return c.fail(fmt.Errorf("enumerate cameras: %w", err))
	}

	var usable []DeviceDescriptor
	for _, cam := range cams {
		if cam.Path == "" {
			usable = append(usable, cam)
			continue
		}
		if err := c.access(cam.Path); err != nil {
			if isPermission(err) {
				return c.fail(fmt.Errorf("%w: %s", ErrPermissionDenied, cam.Path))
			}
			c.log.Debug("skipping camera", zap.String("path", cam.Path), zap.Error(err))
			continue
		}
		usable = append(usable, cam)
	}

	mics, err := list(ctx, c.microphones)
	if err != nil {
		return c.fail(fmt.Errorf("enumerate microphones: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.selCamera = keepOrFirst(usable, c.selCamera)
	c.selMic = keepOrFirst(mics, c.selMic)
	c.inv = Inventory{
		Cameras:            usable,
		Microphones:        mics,
		SelectedCamera:     c.selCamera,
		SelectedMicrophone: c.selMic,
	}

	c.log.Debug("devices enumerated",
		zap.Int("cameras", len(usable)),
		zap.Int("microphones", len(mics)),
		zap.String("camera", c.selCamera),
		zap.String("microphone", c.selMic))
	return c.inv.clone(), nil
}

// fail empties the inventory. Selections survive so a later successful
// enumeration can restore them.
func (c *Catalog) fail(err error) (Inventory, error) {
	c.mu.Lock()
	c.inv = Inventory{}
	c.mu.Unlock()

	if errors.Is(err, ErrPermissionDenied) {
		c.log.Warn("device access denied", zap.Error(err))
	} else {
		c.log.Warn("device enumeration failed", zap.Error(err))
	}
	return Inventory{}, err
}

func list(ctx context.Context, s Source) ([]DeviceDescriptor, error) {
	if s == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devs, err := s.Devices(ctx)
	if err != nil && isPermission(err) && !errors.Is(err, ErrPermissionDenied) {
		err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return devs, err
}

func keepOrFirst(list []DeviceDescriptor, id string) string {
	if _, ok := find(list, id); ok {
		return id
	}
	if len(list) > 0 {
		return list[0].ID
	}
	return ""
}

// Inventory returns the latest inventory.
func (c *Catalog) Inventory() Inventory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inv.clone()
}

// SelectCamera selects a camera from the current inventory.
func (c *Catalog) SelectCamera(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := find(c.inv.Cameras, id); !ok {
		return fmt.Errorf("%w: camera %q", ErrUnknownDevice, id)
	}
	c.selCamera = id
	c.inv.SelectedCamera = id
	return nil
}

// SelectMicrophone selects a microphone from the current inventory.
func (c *Catalog) SelectMicrophone(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := find(c.inv.Microphones, id); !ok {
		return fmt.Errorf("%w: microphone %q", ErrUnknownDevice, id)
	}
	c.selMic = id
	c.inv.SelectedMicrophone = id
	return nil
}

func (inv Inventory) clone() Inventory {
	out := inv
	out.Cameras = append([]DeviceDescriptor(nil), inv.Cameras...)
	out.Microphones = append([]DeviceDescriptor(nil), inv.Microphones...)
	return out
}
