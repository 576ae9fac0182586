package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AllenDang/cimgui-go/imgui"

	"github.com/Faultbox/avatar-studio/internal/avatar"
	"github.com/Faultbox/avatar-studio/internal/devices"
)

var (
	colorError   = imgui.NewVec4(1, 0.4, 0.4, 1)
	colorWarning = imgui.NewVec4(1, 0.8, 0, 1)
	colorDim     = imgui.NewVec4(0.7, 0.7, 0.7, 1)
	colorLive    = imgui.NewVec4(1, 0.25, 0.25, 1)
)

const (
	// statusTTL is how long a status message stays visible.
	statusTTL       = 8 * time.Second
	errorRowsHeight = float32(52)
)

func (app *App) renderDevicesPanel() {
	if !imgui.TreeNodeExStrV("Devices", imgui.TreeNodeFlagsDefaultOpen) {
		return
	}
	defer imgui.TreePop()

	if errors.Is(app.deviceErr, devices.ErrPermissionDenied) {
		imgui.TextColored(colorWarning, "Camera access denied")
		imgui.TextColored(colorDim, "(add your user to the video group)")
	}

	inv := app.inventory
	imgui.Text("Camera")
	if len(inv.Cameras) == 0 {
		imgui.TextDisabled("  none found")
	}
	for _, d := range inv.Cameras {
		if imgui.SelectableBoolV(d.Label+"##cam"+d.ID, d.ID == inv.SelectedCamera, 0, imgui.NewVec2(0, 0)) {
			app.selectCamera(d.ID)
		}
		if imgui.IsItemHovered() {
			imgui.SetTooltip(d.Path)
		}
	}

	imgui.Spacing()
	imgui.Text("Microphone")
	if len(inv.Microphones) == 0 {
		imgui.TextDisabled("  none found")
	}
	for _, d := range inv.Microphones {
		if imgui.SelectableBoolV(d.Label+"##mic"+d.ID, d.ID == inv.SelectedMicrophone, 0, imgui.NewVec2(0, 0)) {
			app.selectMicrophone(d.ID)
		}
	}

	imgui.Spacing()
	imgui.BeginDisabledV(app.scanning)
	if imgui.Button("Refresh") {
		app.refreshDevices()
	}
	imgui.EndDisabled()
	if app.monitor.Running() {
		imgui.SameLine()
		imgui.TextDisabled("(hotplug on)")
	}
}

func (app *App) renderModelPanel() {
	if !imgui.TreeNodeExStrV("Model", imgui.TreeNodeFlagsDefaultOpen) {
		return
	}
	defer imgui.TreePop()

	if imgui.ButtonV("Load Model...", imgui.NewVec2(-1, 0)) {
		app.openModelDialog()
	}

	m := app.model
	if m == nil {
		imgui.TextDisabled("No model loaded")
		return
	}

	imgui.Text("Format: " + string(m.Format))
	if m.Meta.Title != "" {
		imgui.TextWrapped("Title: " + m.Meta.Title)
	}
	if len(m.Meta.Authors) > 0 {
		imgui.TextWrapped("Authors: " + strings.Join(m.Meta.Authors, ", "))
	}
	if m.Meta.License != "" {
		imgui.TextWrapped("License: " + m.Meta.License)
	}
	imgui.Text(fmt.Sprintf("Nodes: %d  Meshes: %d", m.Stats.Nodes, m.Stats.Meshes))
	imgui.Text(fmt.Sprintf("Vertices: %d  Triangles: %d", m.Stats.Vertices, m.Stats.Triangles))

	if bones := m.HumanBones(); len(bones) > 0 {
		if imgui.TreeNodeExStrV(fmt.Sprintf("Bones (%d)", len(bones)), 0) {
			for _, b := range bones {
				imgui.Text(b)
			}
			imgui.TreePop()
		}
	}

	if len(m.Expressions) > 0 {
		if imgui.TreeNodeExStrV(fmt.Sprintf("Expressions (%d)", len(m.Expressions)), 0) {
			app.renderExpressions(m.Expressions)
			imgui.TreePop()
		}
	}

	if d := m.Driver; d != nil && len(m.Clips) > 0 {
		imgui.Spacing()
		imgui.Text("Clips")
		for _, name := range m.Clips {
			if imgui.Button("Play##" + name) {
				if err := d.Play(name); err != nil {
					app.setStatus(err.Error(), true)
				}
			}
			imgui.SameLine()
			imgui.Text(name)
		}
		label := "Pause"
		if !d.Playing() {
			label = "Resume"
		}
		if imgui.Button(label) {
			if d.Playing() {
				d.Pause()
			} else {
				d.Resume()
			}
		}

		imgui.Text("Speed:")
		speed := app.clipSpeed
		imgui.SetNextItemWidth(-1)
		if imgui.SliderFloatV("##ClipSpeed", &speed, 0.1, 3.0, "%.1fx", imgui.SliderFlagsNone) {
			app.setClipSpeed(speed)
		}
	}
}

// renderExpressions lists expressions with a weight slider each. Binary
// expressions snap at 0.5.
func (app *App) renderExpressions(exprs []*avatar.Expression) {
	if imgui.BeginTable("expressions", 2) {
		for _, e := range exprs {
			imgui.TableNextRow()
			imgui.TableNextColumn()
			imgui.Text(e.Name)
			if imgui.IsItemHovered() {
				if e.IsBinary {
					imgui.SetTooltip("binary")
				} else {
					imgui.SetTooltip(fmt.Sprintf("%d binds", len(e.Binds)))
				}
			}
			imgui.TableNextColumn()
			w := app.exprWeights[e.Name]
			imgui.SetNextItemWidth(-1)
			if imgui.SliderFloatV("##expr"+e.Name, &w, 0, 1, "%.2f", imgui.SliderFlagsNone) {
				app.setExpressionWeight(e.Name, w)
			}
		}
		imgui.EndTable()
	}
	if imgui.Button("Reset Expressions") {
		app.resetExpressions()
	}
}

func (app *App) renderViewport() {
	avail := imgui.ContentRegionAvail()
	if app.loopErr != nil {
		// Leave room for the error line and the restart button
		avail.Y -= errorRowsHeight
	}
	w, h := int(avail.X), int(avail.Y)
	app.canvas.SetLayoutSize(w, h)

	if !app.viewer.Stats().Live && app.loopErr == nil && w > 0 && h > 0 {
		app.initViewport(w, h)
	}

	app.frames.Run(time.Since(app.start))

	if tex, tw, th := app.canvas.Texture(); tex != 0 && tw > 0 && th > 0 {
		texRef := imgui.NewTextureRefTextureID(imgui.TextureID(tex))
		imgui.ImageWithBgV(
			*texRef,
			imgui.NewVec2(avail.X, avail.Y),
			imgui.NewVec2(0, 1), // UV flipped
			imgui.NewVec2(1, 0),
			imgui.NewVec4(0, 0, 0, 1),
			imgui.NewVec4(1, 1, 1, 1),
		)
		app.handleViewportMouse()
	}

	if app.loopErr != nil {
		imgui.TextColored(colorError, "Viewport stopped: "+app.loopErr.Error())
		if imgui.Button("Restart viewport") {
			app.restartViewport()
		}
	}
}

func (app *App) handleViewportMouse() {
	cam := app.viewer.Camera()
	if cam == nil || !imgui.IsItemHovered() {
		return
	}

	mousePos := imgui.MousePos()
	if imgui.IsMouseDragging(imgui.MouseButtonLeft) {
		cam.HandleDrag(mousePos.X-app.lastMouse.X, mousePos.Y-app.lastMouse.Y)
	}
	app.lastMouse = mousePos

	if wheel := imgui.CurrentIO().MouseWheel(); wheel != 0 {
		cam.HandleZoom(wheel)
	}
}

func (app *App) renderRecordingPanel() {
	st := app.recorder.State()

	switch {
	case st.Recording && st.Paused:
		imgui.TextColored(colorWarning, "PAUSED")
	case st.Recording:
		imgui.TextColored(colorLive, "REC")
	default:
		imgui.TextDisabled("Idle")
	}
	imgui.SameLine()
	imgui.Text(formatDuration(st.Duration))
	imgui.Separator()

	if !st.Recording {
		if imgui.ButtonV("Start", imgui.NewVec2(-1, 0)) {
			app.startRecording()
		}
	} else {
		label := "Pause"
		if st.Paused {
			label = "Resume"
		}
		if imgui.ButtonV(label, imgui.NewVec2(-1, 0)) {
			app.togglePause()
		}
		if imgui.ButtonV("Stop", imgui.NewVec2(-1, 0)) {
			app.stopRecording()
		}
	}

	imgui.Spacing()
	imgui.BeginDisabledV(st.Output == nil || app.exporting)
	if imgui.ButtonV("Download", imgui.NewVec2(-1, 0)) {
		app.downloadRecording()
	}
	imgui.EndDisabled()

	if out := st.Output; out != nil {
		imgui.Spacing()
		imgui.Text(fmt.Sprintf("Frames: %d", out.Frames))
		if out.Dropped > 0 {
			imgui.TextColored(colorWarning, fmt.Sprintf("Dropped: %d", out.Dropped))
		}
		imgui.TextColored(colorDim, out.ID)
	}
}

func (app *App) renderStatusBar() {
	if app.status != "" && time.Since(app.statusTime) < statusTTL {
		if app.statusErr {
			imgui.TextColored(colorError, app.status)
		} else {
			imgui.Text(app.status)
		}
		return
	}

	stats := app.viewer.Stats()
	if !stats.Live {
		imgui.Text("Viewport not running")
		return
	}
	imgui.Text(fmt.Sprintf("%dx%d | %d frames drawn | %s",
		stats.Width, stats.Height, stats.Frames, app.modelLabel()))
}

func (app *App) modelLabel() string {
	if app.model == nil {
		return "no model"
	}
	if t := app.model.Meta.Title; t != "" {
		return t
	}
	return app.model.Bundle.Name
}
