package devices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"
)

type fakeSource struct {
	devs  []DeviceDescriptor
	err   error
	calls int
}

func (f *fakeSource) Devices(ctx context.Context) ([]DeviceDescriptor, error) {
	f.calls++
	return f.devs, f.err
}

func cam(n string) DeviceDescriptor {
	return DeviceDescriptor{ID: "/dev/" + n, Label: n, Kind: KindCamera, Path: "/dev/" + n}
}

func mic(n string) DeviceDescriptor {
	return DeviceDescriptor{ID: n, Label: n, Kind: KindMicrophone}
}

func allowAll(string) error { return nil }

func TestEnumerateSelectsFirst(t *testing.T) {
	c := NewCatalog(Options{
		Cameras:     &fakeSource{devs: []DeviceDescriptor{cam("video0"), cam("video2")}},
		Microphones: &fakeSource{devs: []DeviceDescriptor{mic("Built-in"), mic("USB")}},
		Access:      allowAll,
	})

	inv, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if inv.SelectedCamera != "/dev/video0" {
		t.Errorf("SelectedCamera = %q, want /dev/video0", inv.SelectedCamera)
	}
	if inv.SelectedMicrophone != "Built-in" {
		t.Errorf("SelectedMicrophone = %q, want Built-in", inv.SelectedMicrophone)
	}
	if d, ok := inv.Camera(); !ok || d.Label != "video0" {
		t.Errorf("Camera() = %+v, %v", d, ok)
	}
}

func TestEnumerateKeepsSelection(t *testing.T) {
	cams := &fakeSource{devs: []DeviceDescriptor{cam("video0"), cam("video2")}}
	mics := &fakeSource{devs: []DeviceDescriptor{mic("Built-in"), mic("USB")}}
	c := NewCatalog(Options{Cameras: cams, Microphones: mics, Access: allowAll})

	if _, err := c.Enumerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectCamera("/dev/video2"); err != nil {
		t.Fatalf("SelectCamera() error = %v", err)
	}
	if err := c.SelectMicrophone("USB"); err != nil {
		t.Fatalf("SelectMicrophone() error = %v", err)
	}

	// video2 survives, the USB microphone is unplugged
	mics.devs = []DeviceDescriptor{mic("Built-in")}
	inv, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if inv.SelectedCamera != "/dev/video2" {
		t.Errorf("SelectedCamera = %q, want /dev/video2", inv.SelectedCamera)
	}
	if inv.SelectedMicrophone != "Built-in" {
		t.Errorf("SelectedMicrophone = %q, want Built-in", inv.SelectedMicrophone)
	}
}

func TestEnumeratePreferred(t *testing.T) {
	c := NewCatalog(Options{
		Cameras:         &fakeSource{devs: []DeviceDescriptor{cam("video0"), cam("video2")}},
		Access:          allowAll,
		PreferredCamera: "/dev/video2",
	})
	inv, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if inv.SelectedCamera != "/dev/video2" {
		t.Errorf("SelectedCamera = %q, want preferred /dev/video2", inv.SelectedCamera)
	}
	if inv.SelectedMicrophone != "" {
		t.Errorf("SelectedMicrophone = %q, want none", inv.SelectedMicrophone)
	}
}

func TestEnumeratePermissionDenied(t *testing.T) {
	tests := []struct {
		name   string
		cams   *fakeSource
		access func(string) error
	}{
		{
			name: "unreadable node",
			cams: &fakeSource{devs: []DeviceDescriptor{cam("video0"), cam("video2")}},
			access: func(p string) error {
				if p == "/dev/video2" {
					return unix.EACCES
				}
				return nil
			},
		},
		{
			name:   "source refused",
			cams:   &fakeSource{err: os.ErrPermission},
			access: allowAll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mics := &fakeSource{devs: []DeviceDescriptor{mic("Built-in")}}
			c := NewCatalog(Options{Cameras: tt.cams, Microphones: mics, Access: tt.access})

			inv, err := c.Enumerate(context.Background())
			if !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("Enumerate() error = %v, want ErrPermissionDenied", err)
			}
			if len(inv.Cameras) != 0 || len(inv.Microphones) != 0 {
				t.Errorf("inventory = %+v, want empty", inv)
			}
			if got := c.Inventory(); len(got.Cameras) != 0 {
				t.Errorf("stored inventory = %+v, want empty", got)
			}
		})
	}
}

func TestEnumerateSkipsVanishedNodes(t *testing.T) {
	c := NewCatalog(Options{
		Cameras: &fakeSource{devs: []DeviceDescriptor{cam("video0"), cam("video2")}},
		Access: func(p string) error {
			if p == "/dev/video0" {
				return unix.ENOENT
			}
			return nil
		},
	})
	inv, err := c.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(inv.Cameras) != 1 || inv.SelectedCamera != "/dev/video2" {
		t.Errorf("inventory = %+v, want only video2", inv)
	}
}

func TestEnumerateSourceError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCatalog(Options{
		Cameras:     &fakeSource{devs: []DeviceDescriptor{cam("video0")}},
		Microphones: &fakeSource{err: boom},
		Access:      allowAll,
	})
	_, err := c.Enumerate(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Enumerate() error = %v, want boom", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Error("plain failure reported as permission denied")
	}
}

func TestEnumerateCancelled(t *testing.T) {
	src := &fakeSource{devs: []DeviceDescriptor{cam("video0")}}
	c := NewCatalog(Options{Cameras: src, Access: allowAll})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Enumerate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Enumerate() error = %v, want context.Canceled", err)
	}
	if src.calls != 0 {
		t.Errorf("source called %d times after cancel", src.calls)
	}
}

func TestSelectUnknown(t *testing.T) {
	c := NewCatalog(Options{Cameras: &fakeSource{devs: []DeviceDescriptor{cam("video0")}}, Access: allowAll})
	if _, err := c.Enumerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectCamera("/dev/video9"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SelectCamera() error = %v, want ErrUnknownDevice", err)
	}
	if err := c.SelectMicrophone("nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SelectMicrophone() error = %v, want ErrUnknownDevice", err)
	}
	if got := c.Inventory().SelectedCamera; got != "/dev/video0" {
		t.Errorf("selection changed to %q", got)
	}
}

func TestInventoryIsCopy(t *testing.T) {
	c := NewCatalog(Options{Cameras: &fakeSource{devs: []DeviceDescriptor{cam("video0")}}, Access: allowAll})
	inv, _ := c.Enumerate(context.Background())
	inv.Cameras[0].Label = "changed"
	if got := c.Inventory().Cameras[0].Label; got != "video0" {
		t.Errorf("stored label = %q, want video0", got)
	}
}

func TestCameraFromSysfs(t *testing.T) {
	write := func(t *testing.T, dir, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	capture := t.TempDir()
	write(t, capture, "name", "HD Webcam\n")
	write(t, capture, "index", "0\n")

	meta := t.TempDir()
	write(t, meta, "name", "HD Webcam\n")
	write(t, meta, "index", "1\n")

	bare := t.TempDir()

	tests := []struct {
		name   string
		kobj   string
		env    map[string]string
		want   DeviceDescriptor
		wantOK bool
	}{
		{
			name:   "capture node",
			kobj:   capture,
			env:    map[string]string{"DEVNAME": "video0"},
			want:   DeviceDescriptor{ID: "/dev/video0", Label: "HD Webcam", Kind: KindCamera, Path: "/dev/video0"},
			wantOK: true,
		},
		{
			name: "metadata node",
			kobj: meta,
			env:  map[string]string{"DEVNAME": "video1"},
		},
		{
			name:   "no attributes",
			kobj:   bare,
			env:    map[string]string{"DEVNAME": "video4"},
			want:   DeviceDescriptor{ID: "/dev/video4", Label: "video4", Kind: KindCamera, Path: "/dev/video4"},
			wantOK: true,
		},
		{
			name: "no devname",
			kobj: capture,
			env:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cameraFromSysfs(tt.kobj, tt.env, "/dev")
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("cameraFromSysfs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// fakeCrawl behaves like crawler.ExistingDevices: it checks quit before
// each send and closes queue when it stops.
func fakeCrawl(queue chan<- crawler.Device, quit <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	defer close(queue)
	for {
		select {
		case <-quit:
			return
		default:
		}
		queue <- crawler.Device{KObj: "/nonexistent", Env: map[string]string{}}
	}
}

func TestCollectCamerasCancelReleasesCrawler(t *testing.T) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := make(chan struct{}, 1)
	finished := make(chan struct{})
	go fakeCrawl(queue, quit, finished)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := collectCameras(ctx, queue, errs, quit, "/dev"); !errors.Is(err, context.Canceled) {
		t.Fatalf("collectCameras() error = %v, want context.Canceled", err)
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("crawler still blocked after collectCameras returned")
	}
}

func TestCollectCamerasSorted(t *testing.T) {
	kobj := func(name string) string {
		dir := filepath.Join(t.TempDir(), name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		return dir
	}

	queue := make(chan crawler.Device, 2)
	queue <- crawler.Device{KObj: kobj("video2"), Env: map[string]string{"DEVNAME": "video2"}}
	queue <- crawler.Device{KObj: kobj("video0"), Env: map[string]string{"DEVNAME": "video0"}}
	close(queue)

	got, err := collectCameras(context.Background(), queue, make(chan error, 1), make(chan struct{}, 1), "/dev")
	if err != nil {
		t.Fatalf("collectCameras() error = %v", err)
	}
	if len(got) != 2 || got[0].Path != "/dev/video0" || got[1].Path != "/dev/video2" {
		t.Errorf("collectCameras() = %+v, want video0 then video2", got)
	}
}

func TestMicrophones(t *testing.T) {
	got := microphones([]string{"Built-in", "", "USB", "Built-in"})
	want := []DeviceDescriptor{mic("Built-in"), mic("USB")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("microphones() = %+v, want %+v", got, want)
	}
}

func TestMonitorNilSafety(t *testing.T) {
	if m := NewMonitor(nil, nil); m != nil {
		t.Error("expected nil monitor without a callback")
	}

	var m *Monitor
	m.Stop()
	if m.Running() {
		t.Error("nil monitor reports running")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Start on nil monitor = %v", err)
	}

	m = NewMonitor(nil, func() {})
	m.Stop()
	if m.Running() {
		t.Error("unstarted monitor reports running")
	}
}

func TestMonitorStartConnectError(t *testing.T) {
	m := NewMonitor(nil, func() {})
	m.connect = func() (*netlink.UEventConn, error) { return nil, unix.EPERM }

	err := m.Start(context.Background())
	if !errors.Is(err, unix.EPERM) {
		t.Fatalf("Start() error = %v, want EPERM", err)
	}
	if m.Running() {
		t.Error("monitor running after a failed connect")
	}
	m.Stop()
}

func TestSDLSourceDispatch(t *testing.T) {
	gone := errors.New("main thread gone")
	dispatched := 0
	src := SDLSource{Do: func(ctx context.Context, fn func()) error {
		dispatched++
		return gone
	}}

	devs, err := src.Devices(context.Background())
	if !errors.Is(err, gone) || devs != nil {
		t.Errorf("Devices() = %v, %v, want dispatch error", devs, err)
	}
	if dispatched != 1 {
		t.Errorf("Do called %d times, want 1", dispatched)
	}
}

func TestMonitorCoalescesEvents(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(nil, func() { calls.Add(1) })
	m.settle = 20 * time.Millisecond

	for i := 0; i < 5; i++ {
		m.handleEvent(netlink.UEvent{
			Action: netlink.ADD,
			Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "video0"},
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times, want 1", got)
	}
}
