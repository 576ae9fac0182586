// Avatar Studio - view a rigged avatar, pick capture devices and record the viewport.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/avatar"
	"github.com/Faultbox/avatar-studio/internal/config"
	"github.com/Faultbox/avatar-studio/internal/devices"
	"github.com/Faultbox/avatar-studio/internal/engine/canvas"
	"github.com/Faultbox/avatar-studio/internal/engine/debug"
	"github.com/Faultbox/avatar-studio/internal/engine/frame"
	"github.com/Faultbox/avatar-studio/internal/engine/renderer"
	"github.com/Faultbox/avatar-studio/internal/engine/scene"
	"github.com/Faultbox/avatar-studio/internal/engine/ui"
	"github.com/Faultbox/avatar-studio/internal/logger"
	"github.com/Faultbox/avatar-studio/internal/recording"
	"github.com/Faultbox/avatar-studio/internal/recording/library"
	"github.com/Faultbox/avatar-studio/internal/viewer"
)

func main() {
	// GL and SDL calls must stay on the main thread
	runtime.LockOSThread()

	config.ParseFlags()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app, err := NewApp(cfg)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer app.Close()

	if cfg.Viewer.AutoLoad != "" {
		app.importModel(cfg.Viewer.AutoLoad)
	}

	app.Run()
}

// App holds the application state. Everything except the pending channel
// is owned by the main thread.
type App struct {
	cfg *config.Config
	log *zap.Logger

	backend *ui.Backend
	canvas  *canvas.Canvas
	frames  *frame.Queue
	viewer  *viewer.Controller
	start   time.Time

	catalog   *devices.Catalog
	monitor   *devices.Monitor
	inventory devices.Inventory
	deviceErr error
	scanning  bool

	library    *library.Library
	recorder   *recording.Controller
	exporting  bool
	screenshot *debug.Screenshot

	// Model state
	model     *avatar.Model
	modelPath string
	waiting   *avatar.Model // imported before the viewport went live
	importing int           // generation of the newest import

	// Manual pose controls, reset with every model
	exprWeights map[string]float32
	clipSpeed   float32

	// Viewport state
	loopErr   error
	lastMouse imgui.Vec2

	// Status bar message
	status     string
	statusErr  bool
	statusTime time.Time

	// pending carries work from goroutines back to the main thread
	pending chan func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the window and wires the viewer, devices and recorder.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.Named("app")

	b, err := ui.NewBackend(cfg.Window.Title, int32(cfg.Window.Width), int32(cfg.Window.Height), cfg.Viewer.Background)
	if err != nil {
		return nil, err
	}

	lib, err := library.Open(cfg.Recording.Directory, library.Options{
		PendingFrames: cfg.Recording.PendingFrames,
		Logger:        logger.Named("library"),
	})
	if err != nil {
		return nil, fmt.Errorf("open recordings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:     cfg,
		log:     log,
		backend: b,
		canvas:  canvas.New(),
		frames:  frame.NewQueue(),
		library: lib,
		start:   time.Now(),
		pending: make(chan func(), 32),
		ctx:     ctx,
		cancel:  cancel,
	}
	// gl.Init ran inside NewBackend
	app.canvas.MarkReady()

	app.viewer = viewer.New(viewer.Options{
		NewRenderer: newRenderer,
		Scheduler:   app.frames,
		Logger:      logger.Named("viewer"),
		Camera:      cameraOptions(cfg.Viewer),
		Lights:      lights(cfg.Viewer),
		Background:  mgl32.Vec4(cfg.Viewer.Background),
		OnError: func(err error) {
			app.loopErr = err
		},
	})

	app.recorder = recording.New(recording.Options{
		Sink:   lib,
		FPS:    cfg.Recording.FPS,
		Logger: logger.Named("recording"),
	})
	app.viewer.AddObserver(app.recorder)

	// Observers run inside the viewer tick, on the main thread
	shotDir := filepath.Join(filepath.Dir(cfg.Recording.Directory), "screenshots")
	app.screenshot = debug.NewScreenshot(shotDir, "viewport", logger.Named("screenshot"), func(path string, err error) {
		if err != nil {
			app.setStatus("Screenshot failed: "+err.Error(), true)
			return
		}
		app.setStatus("Saved screenshot: "+path, false)
	})
	app.viewer.AddObserver(app.screenshot)

	app.catalog = devices.NewCatalog(devices.Options{
		Cameras:             devices.V4LSource{},
		Microphones:         devices.SDLSource{Do: app.onMain},
		PreferredCamera:     cfg.Devices.Camera,
		PreferredMicrophone: cfg.Devices.Microphone,
		Logger:              logger.Named("devices"),
	})
	if cfg.Devices.WatchHotplug {
		app.monitor = devices.NewMonitor(logger.Named("hotplug"), app.refreshDevices)
		if err := app.monitor.Start(ctx); err != nil {
			log.Warn("hotplug detection disabled", zap.Error(err))
			app.setStatus("Hotplug detection unavailable, use Refresh", true)
		}
	}
	app.refreshDevices()

	return app, nil
}

// newRenderer creates the GL renderer for a canvas.
func newRenderer(ctx viewer.DrawContext, width, height int) (viewer.Renderer, error) {
	target, ok := ctx.(renderer.Target)
	if !ok {
		return nil, fmt.Errorf("draw context %T cannot present frames", ctx)
	}
	r, err := renderer.New(target, width, height)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func cameraOptions(v config.ViewerConfig) viewer.CameraOptions {
	return viewer.CameraOptions{
		FOVDegrees: v.FOVDegrees,
		Near:       v.Near,
		Far:        v.Far,
		Position:   mgl32.Vec3(v.CameraPosition),
		Target:     mgl32.Vec3(v.CameraTarget),
	}
}

func lights(v config.ViewerConfig) scene.Lights {
	l := scene.DefaultLights()
	l.Ambient.Color = mgl32.Vec3(v.AmbientColor)
	l.Ambient.Intensity = v.AmbientIntensity
	l.Directional.Color = mgl32.Vec3(v.LightColor)
	l.Directional.Intensity = v.LightIntensity
	if dir := mgl32.Vec3(v.LightDirection); dir.Len() > 0 {
		l.Directional.Direction = dir.Normalize()
	}
	return l
}

// Close stops background work and releases the viewport and the library.
func (app *App) Close() {
	app.cancel()
	app.monitor.Stop()

	if app.recorder.State().Recording {
		if err := app.recorder.Stop(); err != nil {
			app.log.Error("stop recording on exit", zap.Error(err))
		}
	}
	app.viewer.RemoveObserver(app.recorder)
	app.viewer.RemoveObserver(app.screenshot)
	app.viewer.Dispose()
	app.canvas.Clear()

	if app.waiting != nil {
		app.waiting.Bundle.Release()
		app.waiting = nil
	}
	if err := app.library.Close(); err != nil {
		app.log.Warn("close recordings", zap.Error(err))
	}
}

// Run starts the main application loop.
func (app *App) Run() {
	app.backend.Run(app.render)
}

// post queues fn to run on the main thread at the start of the next frame.
func (app *App) post(fn func()) {
	select {
	case app.pending <- fn:
	case <-app.ctx.Done():
	}
}

// onMain runs fn on the main thread and waits for it to finish. It must not
// be called from the main thread.
func (app *App) onMain(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case app.pending <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainPending runs everything goroutines posted since the last frame.
func (app *App) drainPending() {
	for {
		select {
		case fn := <-app.pending:
			fn()
		default:
			return
		}
	}
}

func (app *App) render() {
	app.drainPending()
	app.handleShortcuts()

	if imgui.BeginMainMenuBar() {
		if imgui.BeginMenu("File") {
			if imgui.MenuItemBool("Load Model...") {
				app.openModelDialog()
			}
			imgui.Separator()
			if imgui.MenuItemBool("Exit") {
				app.Close()
				os.Exit(0)
			}
			imgui.EndMenu()
		}
		if imgui.BeginMenu("View") {
			if imgui.MenuItemBool("Reset Camera") {
				if cam := app.viewer.Camera(); cam != nil {
					cam.Reset()
				}
			}
			if imgui.MenuItemBool("Screenshot") {
				app.screenshot.Request()
			}
			if imgui.MenuItemBool("Restart Viewport") {
				app.restartViewport()
			}
			imgui.EndMenu()
		}
		imgui.EndMainMenuBar()
	}

	layout := ui.ComputeLayout(ui.Viewport())

	// Window flags for fixed panels
	flags := imgui.WindowFlagsNoMove | imgui.WindowFlagsNoResize | imgui.WindowFlagsNoCollapse

	// Left panel - devices and model
	placeWindow(layout.Left)
	if imgui.BeginV("Avatar", nil, flags) {
		app.renderDevicesPanel()
		imgui.Separator()
		app.renderModelPanel()
	}
	imgui.End()

	// Center panel - viewport
	placeWindow(layout.Viewport)
	if imgui.BeginV("Viewport", nil, flags|imgui.WindowFlagsNoScrollbar) {
		app.renderViewport()
	}
	imgui.End()

	// Right panel - recording
	placeWindow(layout.Right)
	if imgui.BeginV("Recording", nil, flags) {
		app.renderRecordingPanel()
	}
	imgui.End()

	// Status bar at bottom
	placeWindow(layout.Status)
	statusFlags := flags | imgui.WindowFlagsNoTitleBar | imgui.WindowFlagsNoScrollbar
	if imgui.BeginV("##StatusBar", nil, statusFlags) {
		app.renderStatusBar()
	}
	imgui.End()
}

func placeWindow(r ui.Rect) {
	imgui.SetNextWindowPos(imgui.NewVec2(r.X, r.Y))
	imgui.SetNextWindowSize(imgui.NewVec2(r.W, r.H))
}

func (app *App) handleShortcuts() {
	if imgui.IsAnyItemActive() {
		return
	}
	// Ctrl+O = load model
	if ui.IsChordPressed(imgui.ModCtrl, imgui.KeyO) {
		app.openModelDialog()
	}
	// Space = play/pause the active clip
	if app.model != nil && app.model.Driver != nil && ui.IsKeyPressed(imgui.KeySpace) {
		if app.model.Driver.Playing() {
			app.model.Driver.Pause()
		} else {
			app.model.Driver.Resume()
		}
	}
	// F12 = screenshot of the next viewport frame
	if ui.IsKeyPressed(imgui.KeyF12) {
		app.screenshot.Request()
	}
	// Home = reset camera
	if ui.IsKeyPressed(imgui.KeyHome) {
		if cam := app.viewer.Camera(); cam != nil {
			cam.Reset()
		}
	}
}

// setStatus shows msg in the status bar.
func (app *App) setStatus(msg string, isErr bool) {
	app.status = msg
	app.statusErr = isErr
	app.statusTime = time.Now()
}
