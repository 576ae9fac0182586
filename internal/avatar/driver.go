package avatar

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

// ErrUnknownClip is returned by Play for a name the model does not have.
var ErrUnknownClip = errors.New("avatar: unknown clip")

// Pose is one motion-capture sample.
type Pose struct {
	// Bones holds humanoid bone rotations relative to the rest pose.
	Bones map[string]mgl32.Quat
	// Expressions holds expression weights in [0, 1].
	Expressions map[string]float32
}

type morphKey struct {
	mesh  *scene.Mesh
	index int
}

// Driver advances an avatar's pose once per frame. Advance runs on the render
// thread; Submit may be called from any goroutine.
type Driver struct {
	mu sync.Mutex

	clips   []*Clip
	active  int
	time    float64
	speed   float64
	playing bool

	humanoid    map[string]*scene.Node
	rest        map[string]mgl32.Quat
	expressions map[string]*Expression
	weights     map[morphKey]float32

	latest  *Pose
	restore bool
}

func newDriver(clips []*Clip, humanoid map[string]*scene.Node, expressions []*Expression) *Driver {
	d := &Driver{
		clips:       clips,
		active:      -1,
		speed:       1,
		humanoid:    humanoid,
		rest:        make(map[string]mgl32.Quat, len(humanoid)),
		expressions: make(map[string]*Expression, len(expressions)),
		weights:     make(map[morphKey]float32),
	}
	for bone, n := range humanoid {
		d.rest[bone] = n.Rotation
	}
	for _, e := range expressions {
		d.expressions[e.Name] = e
	}
	if len(clips) > 0 {
		d.active = 0
		d.playing = true
	}
	return d
}

// Clips returns the clip names in file order.
func (d *Driver) Clips() []string {
	names := make([]string, len(d.clips))
	for i, c := range d.clips {
		names[i] = c.Name
	}
	return names
}

// Play starts the named clip from its beginning.
func (d *Driver) Play(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.clips {
		if c.Name == name {
			d.active = i
			d.time = 0
			d.playing = true
			return nil
		}
	}
	return ErrUnknownClip
}

// Pause stops clip playback, keeping the current time.
func (d *Driver) Pause() {
	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
}

// Resume continues the active clip.
func (d *Driver) Resume() {
	d.mu.Lock()
	d.playing = d.active >= 0
	d.mu.Unlock()
}

// Playing reports whether a clip is advancing.
func (d *Driver) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// SetSpeed scales clip playback. Negative speeds play backwards.
func (d *Driver) SetSpeed(speed float64) {
	d.mu.Lock()
	d.speed = speed
	d.mu.Unlock()
}

// Submit replaces the motion-capture pose applied on the next Advance.
func (d *Driver) Submit(p Pose) {
	d.mu.Lock()
	d.latest = &p
	d.restore = false
	d.mu.Unlock()
}

// ClearPose drops the motion-capture pose and returns bones and expressions
// to rest on the next Advance.
func (d *Driver) ClearPose() {
	d.mu.Lock()
	d.latest = nil
	d.restore = true
	d.mu.Unlock()
}

// Advance moves the active clip forward by dt seconds, then applies the
// latest motion-capture pose on top of it.
func (d *Driver) Advance(dt float64) {
	d.mu.Lock()
	pose, restore := d.latest, d.restore
	d.restore = false
	var clip *Clip
	var t float64
	if d.active >= 0 {
		clip = d.clips[d.active]
		if d.playing {
			d.time = loopTime(d.time+dt*d.speed, float64(clip.Duration))
		}
		t = d.time
	}
	d.mu.Unlock()

	if restore {
		for bone, n := range d.humanoid {
			n.Rotation = d.rest[bone]
		}
		d.applyExpressions(nil)
	}
	if clip != nil {
		clip.apply(float32(t))
	}
	if pose == nil {
		return
	}
	for bone, q := range pose.Bones {
		n, ok := d.humanoid[bone]
		if !ok {
			continue
		}
		n.Rotation = d.rest[bone].Mul(q).Normalize()
	}
	if pose.Expressions != nil {
		d.applyExpressions(pose.Expressions)
	}
}

// applyExpressions sums expression binds per morph target and writes the
// clamped totals. Targets bound by an expression missing from weights go to 0.
func (d *Driver) applyExpressions(weights map[string]float32) {
	clear(d.weights)
	for name, e := range d.expressions {
		w := weights[name]
		if e.IsBinary {
			if w > 0.5 {
				w = 1
			} else {
				w = 0
			}
		}
		for _, bind := range e.Binds {
			k := morphKey{bind.Mesh, bind.Index}
			d.weights[k] += w * bind.Weight
		}
	}
	for k, w := range d.weights {
		k.mesh.SetWeight(k.index, mgl32.Clamp(w, 0, 1))
	}
}
