package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/sqweek/dialog"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/avatar"
	"github.com/Faultbox/avatar-studio/internal/devices"
	"github.com/Faultbox/avatar-studio/internal/recording/library"
)

const (
	enumerateTimeout = 5 * time.Second
	exportTimeout    = 2 * time.Minute
)

// openModelDialog shows a native file dialog to pick an avatar file. The
// dialog runs off the main thread; the chosen path comes back through post.
func (app *App) openModelDialog() {
	go func() {
		filename, err := dialog.File().
			Filter("Avatar Models", "vrm", "glb", "gltf").
			Filter("All Files", "*").
			Title("Load Avatar").
			Load()
		if err != nil {
			if !errors.Is(err, dialog.ErrCancelled) {
				app.log.Warn("file dialog failed", zap.Error(err))
			}
			return
		}
		app.post(func() { app.importModel(filename) })
	}()
}

// importModel parses path on a goroutine. Only the newest import is
// applied; a failed import leaves the displayed avatar as it was.
func (app *App) importModel(path string) {
	app.importing++
	gen := app.importing
	app.setStatus("Loading "+filepath.Base(path)+"...", false)

	opts := avatar.Options{
		TargetHeight: app.cfg.Viewer.AvatarHeight,
		Logger:       app.log.Named("import"),
	}
	go func() {
		m, err := avatar.ImportFile(app.ctx, path, opts)
		app.post(func() { app.applyModel(gen, path, m, err) })
	}()
}

func (app *App) applyModel(gen int, path string, m *avatar.Model, err error) {
	name := filepath.Base(path)
	if gen != app.importing {
		if m != nil {
			m.Bundle.Release()
		}
		return
	}
	if err != nil {
		app.log.Error("import failed", zap.String("path", path), zap.Error(err))
		app.setStatus(fmt.Sprintf("Failed to load %s: %v", name, err), true)
		return
	}

	if !app.viewer.Stats().Live {
		if app.waiting != nil {
			app.waiting.Bundle.Release()
		}
		app.waiting = m
		app.modelPath = path
		app.setStatus("Loaded "+name+", waiting for the viewport", false)
		return
	}

	if err := app.viewer.LoadBundle(m.Bundle); err != nil {
		app.setStatus(fmt.Sprintf("Failed to show %s: %v", name, err), true)
		return
	}
	app.model = m
	app.modelPath = path
	app.resetPoseControls()
	app.backend.SetWindowTitle(app.cfg.Window.Title + " - " + name)
	app.setStatus(fmt.Sprintf("Loaded %s (%s, %d vertices)", name, m.Format, m.Stats.Vertices), false)
}

// initViewport binds the viewer to the canvas once the layout has a size.
func (app *App) initViewport(width, height int) {
	if err := app.viewer.Initialize(app.canvas, width, height); err != nil {
		app.loopErr = err
		app.log.Error("viewport init failed", zap.Error(err))
		return
	}
	app.loopErr = nil

	if m := app.waiting; m != nil {
		app.waiting = nil
		if err := app.viewer.LoadBundle(m.Bundle); err != nil {
			app.setStatus(fmt.Sprintf("Failed to show model: %v", err), true)
			return
		}
		app.model = m
		app.resetPoseControls()
		app.backend.SetWindowTitle(app.cfg.Window.Title + " - " + filepath.Base(app.modelPath))
	}
}

// restartViewport tears the viewer down and builds it again. The bundle is
// released with the old renderer, so the last model is imported again.
func (app *App) restartViewport() {
	app.viewer.Dispose()
	app.canvas.Clear()
	app.model = nil
	app.loopErr = nil

	w, h := app.canvas.Size()
	app.initViewport(w, h)
	if app.loopErr == nil && app.modelPath != "" {
		app.importModel(app.modelPath)
	}
}

// refreshDevices enumerates capture devices on a goroutine. It is also the
// hotplug callback, so it may be called from any goroutine.
func (app *App) refreshDevices() {
	app.post(func() { app.scanning = true })
	go func() {
		ctx, cancel := context.WithTimeout(app.ctx, enumerateTimeout)
		defer cancel()

		inv, err := app.catalog.Enumerate(ctx)
		app.post(func() {
			app.scanning = false
			app.inventory = inv
			app.deviceErr = err
			if err != nil && !errors.Is(err, devices.ErrPermissionDenied) {
				app.setStatus("Device scan failed: "+err.Error(), true)
			}
		})
	}()
}

func (app *App) selectCamera(id string) {
	if err := app.catalog.SelectCamera(id); err != nil {
		app.setStatus(err.Error(), true)
		return
	}
	app.inventory = app.catalog.Inventory()
}

func (app *App) selectMicrophone(id string) {
	if err := app.catalog.SelectMicrophone(id); err != nil {
		app.setStatus(err.Error(), true)
		return
	}
	app.inventory = app.catalog.Inventory()
}

// resetPoseControls returns the expression sliders and clip speed to their
// defaults for a newly shown model.
func (app *App) resetPoseControls() {
	app.exprWeights = make(map[string]float32)
	app.clipSpeed = 1
}

// setExpressionWeight records a slider change and submits all slider
// weights as the model's pose.
func (app *App) setExpressionWeight(name string, w float32) {
	if app.model == nil || app.model.Driver == nil {
		return
	}
	if app.exprWeights == nil {
		app.exprWeights = make(map[string]float32)
	}
	app.exprWeights[name] = w
	app.model.Driver.Submit(expressionPose(app.exprWeights))
}

// resetExpressions zeroes the sliders and returns the face to rest.
func (app *App) resetExpressions() {
	clear(app.exprWeights)
	if app.model != nil && app.model.Driver != nil {
		app.model.Driver.ClearPose()
	}
}

func (app *App) setClipSpeed(speed float32) {
	app.clipSpeed = speed
	if app.model != nil && app.model.Driver != nil {
		app.model.Driver.SetSpeed(float64(speed))
	}
}

// expressionPose copies weights so later slider changes do not alter a
// pose the driver already holds.
func expressionPose(weights map[string]float32) avatar.Pose {
	return avatar.Pose{Expressions: maps.Clone(weights)}
}

func (app *App) startRecording() {
	if err := app.recorder.Start(); err != nil {
		app.setStatus("Cannot start recording: "+err.Error(), true)
		return
	}
	app.setStatus("Recording", false)
}

func (app *App) togglePause() {
	if err := app.recorder.TogglePause(); err != nil {
		app.setStatus(err.Error(), true)
	}
}

func (app *App) stopRecording() {
	if err := app.recorder.Stop(); err != nil {
		app.setStatus("Recording failed: "+err.Error(), true)
		return
	}
	st := app.recorder.State()
	if st.Output != nil {
		app.setStatus(fmt.Sprintf("Saved %d frames (%s)", st.Output.Frames, formatDuration(st.Duration)), false)
	}
}

// downloadRecording asks where to save the last recording and exports it
// as a zip archive.
func (app *App) downloadRecording() {
	out := app.recorder.State().Output
	if out == nil || app.exporting {
		return
	}
	app.exporting = true
	id := out.ID

	go func() {
		dest, err := dialog.File().
			Filter("Zip Archives", "zip").
			Title("Save Recording").
			Save()
		if err != nil {
			if !errors.Is(err, dialog.ErrCancelled) {
				app.log.Warn("save dialog failed", zap.Error(err))
			}
			app.post(func() { app.exporting = false })
			return
		}
		if filepath.Ext(dest) == "" {
			dest += ".zip"
		}

		ctx, cancel := context.WithTimeout(app.ctx, exportTimeout)
		defer cancel()
		err = app.library.Export(ctx, id, dest)

		app.post(func() {
			app.exporting = false
			switch {
			case errors.Is(err, library.ErrLocked):
				app.setStatus("Recording is still being written", true)
			case err != nil:
				app.setStatus("Export failed: "+err.Error(), true)
			default:
				app.setStatus("Exported to "+dest, false)
			}
		})
	}()
}

// formatDuration renders d as m:ss.t.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int64(d / (100 * time.Millisecond))
	return fmt.Sprintf("%d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}
