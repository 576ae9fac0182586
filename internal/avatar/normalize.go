package avatar

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

// Bounds is an axis-aligned box.
type Bounds struct {
	Min, Max mgl32.Vec3
}

// Size returns the box extent on each axis.
func (b Bounds) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Empty reports whether the box holds no points.
func (b Bounds) Empty() bool {
	return b.Min.X() > b.Max.X()
}

// bindPoseBounds returns the world-space bounds of every vertex under root,
// using root's children but not root's own transform.
func bindPoseBounds(root *scene.Node) Bounds {
	inf := float32(math.Inf(1))
	b := Bounds{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
	for _, child := range root.Children() {
		child.Walk(mgl32.Ident4(), func(n *scene.Node, world mgl32.Mat4) bool {
			if n.Mesh == nil {
				return true
			}
			for _, p := range n.Mesh.Primitives {
				for _, pos := range p.Positions {
					w := world.Mul4x1(mgl32.Vec4{pos[0], pos[1], pos[2], 1}).Vec3()
					for i := 0; i < 3; i++ {
						b.Min[i] = min(b.Min[i], w[i])
						b.Max[i] = max(b.Max[i], w[i])
					}
				}
			}
			return true
		})
	}
	return b
}

// normalize sets root's scale and translation so the avatar is targetHeight
// tall, centered on X/Z and standing on Y=0. root's rotation must be about
// Y only. A targetHeight of 0 keeps the original scale.
func normalize(root *scene.Node, targetHeight float32) {
	bounds := bindPoseBounds(root)
	if bounds.Empty() {
		return
	}

	scale := float32(1)
	if h := bounds.Size().Y(); targetHeight > 0 && h > 0 {
		scale = targetHeight / h
	}

	anchor := mgl32.Vec3{
		(bounds.Min.X() + bounds.Max.X()) / 2 * scale,
		bounds.Min.Y() * scale,
		(bounds.Min.Z() + bounds.Max.Z()) / 2 * scale,
	}
	root.Scale = mgl32.Vec3{scale, scale, scale}
	root.Translation = root.Rotation.Rotate(anchor).Mul(-1)
}
