package avatar

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

type interpolation int

const (
	interpLinear interpolation = iota
	interpStep
	interpCubic
)

type targetPath int

const (
	pathTranslation targetPath = iota
	pathRotation
	pathScale
	pathWeights
)

// channel animates one property of one node.
type channel struct {
	node   *scene.Node
	path   targetPath
	interp interpolation
	times  []float32
	values []float32 // keyframes flattened, width floats each (x3 for cubic)
	width  int
	out    []float32
}

// Clip is one glTF animation.
type Clip struct {
	Name     string
	Duration float32 // seconds
	channels []*channel
}

// apply writes the clip's state at time t into its nodes.
func (c *Clip) apply(t float32) {
	for _, ch := range c.channels {
		ch.apply(t)
	}
}

func (ch *channel) apply(t float32) {
	v := ch.out
	if ch.path == pathRotation {
		q := sampleRotation(ch.times, ch.values, ch.interp, t)
		ch.node.Rotation = q
		return
	}
	sample(ch.times, ch.values, ch.width, ch.interp, t, v)
	switch ch.path {
	case pathTranslation:
		ch.node.Translation = mgl32.Vec3{v[0], v[1], v[2]}
	case pathScale:
		ch.node.Scale = mgl32.Vec3{v[0], v[1], v[2]}
	case pathWeights:
		if m := ch.node.Mesh; m != nil {
			for i, w := range v {
				m.SetWeight(i, w)
			}
		}
	}
}

// keyframes finds the keys surrounding t and the blend factor between them.
// prev == next when t is outside the keyed range.
func keyframes(times []float32, t float32) (prev, next int, f float32) {
	for i := range times {
		if times[i] > t {
			next = i
			break
		}
		prev = i
		next = i
	}
	if prev == next {
		return prev, next, 0
	}
	if span := times[next] - times[prev]; span > 0 {
		f = (t - times[prev]) / span
	}
	return prev, next, f
}

// keyValue returns the value slice of key k, skipping cubic tangents.
func keyValue(values []float32, width int, interp interpolation, k int) []float32 {
	if interp == interpCubic {
		base := k*3*width + width
		return values[base : base+width]
	}
	return values[k*width : k*width+width]
}

// sample interpolates width-wide keyframe values at time t into out.
func sample(times, values []float32, width int, interp interpolation, t float32, out []float32) {
	if len(times) == 0 {
		return
	}
	prev, next, f := keyframes(times, t)
	v0 := keyValue(values, width, interp, prev)
	if prev == next || interp == interpStep {
		copy(out, v0)
		return
	}
	v1 := keyValue(values, width, interp, next)

	if interp == interpCubic {
		dt := times[next] - times[prev]
		b0 := values[prev*3*width+2*width : prev*3*width+3*width] // out-tangent of prev
		a1 := values[next*3*width : next*3*width+width]           // in-tangent of next
		f2, f3 := f*f, f*f*f
		h00 := 2*f3 - 3*f2 + 1
		h10 := f3 - 2*f2 + f
		h01 := -2*f3 + 3*f2
		h11 := f3 - f2
		for i := 0; i < width; i++ {
			out[i] = h00*v0[i] + h10*dt*b0[i] + h01*v1[i] + h11*dt*a1[i]
		}
		return
	}

	for i := 0; i < width; i++ {
		out[i] = v0[i] + f*(v1[i]-v0[i])
	}
}

func quatFrom(v []float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// sampleRotation interpolates xyzw quaternion keys, spherically for LINEAR.
func sampleRotation(times, values []float32, interp interpolation, t float32) mgl32.Quat {
	if len(times) == 0 {
		return mgl32.QuatIdent()
	}
	if interp == interpLinear {
		prev, next, f := keyframes(times, t)
		q0 := quatFrom(keyValue(values, 4, interp, prev))
		if prev == next {
			return q0.Normalize()
		}
		q1 := quatFrom(keyValue(values, 4, interp, next))
		return mgl32.QuatSlerp(q0, q1, f).Normalize()
	}
	var out [4]float32
	sample(times, values, 4, interp, t, out[:])
	return quatFrom(out[:]).Normalize()
}

// loopTime wraps t into [0, duration).
func loopTime(t, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	t = math.Mod(t, duration)
	if t < 0 {
		t += duration
	}
	return t
}

func (b *builder) buildClips() ([]*Clip, error) {
	doc := b.doc
	var clips []*Clip
	for a, anim := range doc.Animations {
		clip := &Clip{Name: anim.Name}
		if clip.Name == "" {
			clip.Name = fmt.Sprintf("clip_%d", a)
		}

		for c, gc := range anim.Channels {
			ch, err := b.buildChannel(anim, gc)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: %w", clip.Name, c, err)
			}
			if ch == nil {
				continue
			}
			if n := len(ch.times); n > 0 {
				clip.Duration = max(clip.Duration, ch.times[n-1])
			}
			clip.channels = append(clip.channels, ch)
		}

		if len(clip.channels) > 0 {
			clips = append(clips, clip)
		}
	}
	return clips, nil
}

// buildChannel returns nil for channels that target nothing drawable.
func (b *builder) buildChannel(anim *gltf.Animation, gc *gltf.Channel) (*channel, error) {
	if gc.Target.Node == nil {
		return nil, nil
	}
	node, err := b.node(*gc.Target.Node)
	if err != nil {
		return nil, err
	}
	if gc.Sampler < 0 || gc.Sampler >= len(anim.Samplers) {
		return nil, parseErr("sampler %d out of range", gc.Sampler)
	}
	s := anim.Samplers[gc.Sampler]

	ch := &channel{node: node}
	switch s.Interpolation {
	case gltf.InterpolationStep:
		ch.interp = interpStep
	case gltf.InterpolationCubicSpline:
		ch.interp = interpCubic
	default:
		ch.interp = interpLinear
	}

	switch gc.Target.Path {
	case gltf.TRSTranslation:
		ch.path, ch.width = pathTranslation, 3
	case gltf.TRSRotation:
		ch.path, ch.width = pathRotation, 4
	case gltf.TRSScale:
		ch.path, ch.width = pathScale, 3
	case gltf.TRSWeights:
		if node.Mesh == nil || len(node.Mesh.Weights) == 0 {
			return nil, nil
		}
		ch.path, ch.width = pathWeights, len(node.Mesh.Weights)
	default:
		return nil, nil
	}

	in, err := b.accessor(s.Input)
	if err != nil {
		return nil, err
	}
	raw, err := modeler.ReadAccessor(b.doc, in, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: input: %v", ErrParse, err)
	}
	times, ok := raw.([]float32)
	if !ok {
		return nil, parseErr("input has type %T", raw)
	}
	ch.times = times

	out, err := b.accessor(s.Output)
	if err != nil {
		return nil, err
	}
	raw, err = modeler.ReadAccessor(b.doc, out, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrParse, err)
	}
	switch v := raw.(type) {
	case []float32:
		ch.values = v
	case [][3]float32:
		ch.values = make([]float32, 0, len(v)*3)
		for _, e := range v {
			ch.values = append(ch.values, e[:]...)
		}
	case [][4]float32:
		ch.values = make([]float32, 0, len(v)*4)
		for _, e := range v {
			ch.values = append(ch.values, e[:]...)
		}
	default:
		b.log.Debug("skipping channel with unsupported output", zap.String("type", fmt.Sprintf("%T", raw)))
		return nil, nil
	}

	want := len(ch.times) * ch.width
	if ch.interp == interpCubic {
		want *= 3
	}
	if len(ch.values) != want {
		return nil, parseErr("output has %d values, want %d", len(ch.values), want)
	}
	ch.out = make([]float32, ch.width)
	return ch, nil
}
