package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// PoseDriver advances skeletal and blend-shape state by dt seconds and
// writes the result into the bundle's nodes.
type PoseDriver func(dt float64)

// Bundle is an imported avatar: a root node plus an optional pose driver.
// A bundle is not modified after construction except by its pose driver.
type Bundle struct {
	Name string
	Root *Node
	Pose PoseDriver

	once      sync.Once
	released  bool
	onRelease func()
}

// NewBundle creates a bundle. onRelease, if non-nil, runs once on Release.
func NewBundle(name string, root *Node, pose PoseDriver, onRelease func()) *Bundle {
	return &Bundle{
		Name:      name,
		Root:      root,
		Pose:      pose,
		onRelease: onRelease,
	}
}

// Release drops the bundle's CPU-side geometry and textures. Only the first
// call has any effect.
func (b *Bundle) Release() {
	b.once.Do(func() {
		if b.onRelease != nil {
			b.onRelease()
		}
		if b.Root != nil {
			b.Root.Walk(mgl32.Ident4(), func(n *Node, _ mgl32.Mat4) bool {
				if n.Mesh != nil {
					for _, p := range n.Mesh.Primitives {
						if p.Material != nil && p.Material.Texture != nil {
							p.Material.Texture.Image = nil
						}
						p.Positions, p.Normals, p.UVs = nil, nil, nil
						p.Joints, p.Weights, p.Indices, p.Targets = nil, nil, nil, nil
					}
				}
				return true
			})
		}
		b.Pose = nil
		b.released = true
	})
}

// Released reports whether Release has run.
func (b *Bundle) Released() bool {
	return b.released
}
