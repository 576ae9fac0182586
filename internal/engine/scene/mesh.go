package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// AlphaMode controls how a material's alpha channel is interpreted.
type AlphaMode int

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// Texture is a decoded RGBA image referenced by materials.
type Texture struct {
	Name  string
	Image *image.RGBA
}

// Material describes the surface of a primitive.
type Material struct {
	Name        string
	BaseColor   mgl32.Vec4
	Texture     *Texture
	AlphaMode   AlphaMode
	AlphaCutoff float32
	DoubleSided bool
}

// DefaultMaterial returns an opaque white material.
func DefaultMaterial() *Material {
	return &Material{
		Name:        "default",
		BaseColor:   mgl32.Vec4{1, 1, 1, 1},
		AlphaCutoff: 0.5,
	}
}

// MorphTarget holds per-vertex position deltas for one blend shape.
type MorphTarget struct {
	Positions [][3]float32
}

// Primitive is one drawable part of a mesh.
type Primitive struct {
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Joints    [][4]uint16
	Weights   [][4]float32
	Indices   []uint32
	Targets   []MorphTarget
	Material  *Material
}

// Skinned reports whether the primitive carries joint influences.
func (p *Primitive) Skinned() bool {
	return len(p.Joints) == len(p.Positions) && len(p.Weights) == len(p.Positions) && len(p.Positions) > 0
}

// MorphedPositions returns the base positions with the weighted morph target
// deltas applied. The base data is left untouched.
func (p *Primitive) MorphedPositions(weights []float32) [][3]float32 {
	out := make([][3]float32, len(p.Positions))
	copy(out, p.Positions)
	for t, target := range p.Targets {
		if t >= len(weights) || weights[t] == 0 {
			continue
		}
		w := weights[t]
		for i := range out {
			if i >= len(target.Positions) {
				break
			}
			d := target.Positions[i]
			out[i][0] += d[0] * w
			out[i][1] += d[1] * w
			out[i][2] += d[2] * w
		}
	}
	return out
}

// Mesh groups primitives sharing one set of morph weights.
type Mesh struct {
	Name       string
	Primitives []*Primitive
	Weights    []float32

	version uint64
}

// SetWeight updates one morph weight. Changing a weight bumps the mesh
// version so GPU copies know to refresh.
func (m *Mesh) SetWeight(index int, w float32) {
	if index < 0 || index >= len(m.Weights) || m.Weights[index] == w {
		return
	}
	m.Weights[index] = w
	m.version++
}

// Version returns a counter that increases whenever morph weights change.
func (m *Mesh) Version() uint64 {
	return m.version
}

// Morphed reports whether any morph weight is non-zero.
func (m *Mesh) Morphed() bool {
	for _, w := range m.Weights {
		if w != 0 {
			return true
		}
	}
	return false
}

// Skin binds a mesh to a joint hierarchy.
type Skin struct {
	Joints      []*Node
	InverseBind []mgl32.Mat4
}

// JointMatrices returns the per-joint skinning matrices for a mesh whose
// node has the given world transform.
func (s *Skin) JointMatrices(meshWorld mgl32.Mat4) []mgl32.Mat4 {
	inv := meshWorld.Inv()
	out := make([]mgl32.Mat4, len(s.Joints))
	for i, j := range s.Joints {
		ibm := mgl32.Ident4()
		if i < len(s.InverseBind) {
			ibm = s.InverseBind[i]
		}
		out[i] = inv.Mul4(j.WorldMatrix()).Mul4(ibm)
	}
	return out
}
