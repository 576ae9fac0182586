// Package scene holds the in-memory scene graph drawn by the renderer:
// nodes, meshes, materials, skins, lights and the avatar bundles that are
// attached to and detached from the root as a unit.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AmbientLight lights every surface evenly.
type AmbientLight struct {
	Color     mgl32.Vec3
	Intensity float32
}

// DirectionalLight is an infinitely distant light such as the sun.
type DirectionalLight struct {
	Color     mgl32.Vec3
	Intensity float32
	Direction mgl32.Vec3 // direction the light travels
}

// Lights is the fixed lighting rig of a scene.
type Lights struct {
	Ambient     AmbientLight
	Directional DirectionalLight
}

// DefaultLights returns soft white ambient plus a key light from the upper front-left.
func DefaultLights() Lights {
	return Lights{
		Ambient: AmbientLight{Color: mgl32.Vec3{1, 1, 1}, Intensity: 0.4},
		Directional: DirectionalLight{
			Color:     mgl32.Vec3{1, 1, 1},
			Intensity: 0.8,
			Direction: mgl32.Vec3{-1, -1, -1}.Normalize(),
		},
	}
}

// Scene is the root of everything the renderer draws.
type Scene struct {
	Lights     Lights
	Background mgl32.Vec4

	root *Node
}

// New creates an empty scene with the given lights.
func New(lights Lights) *Scene {
	return &Scene{
		Lights:     lights,
		Background: mgl32.Vec4{0, 0, 0, 1},
		root:       NewNode("scene"),
	}
}

// Root returns the scene's root node.
func (s *Scene) Root() *Node {
	return s.root
}

// Attach adds n as a direct child of the root.
func (s *Scene) Attach(n *Node) {
	s.root.AddChild(n)
}

// Detach removes n from the root. It reports whether n was attached.
func (s *Scene) Detach(n *Node) bool {
	return s.root.RemoveChild(n)
}

// Attached returns the nodes currently attached to the root.
func (s *Scene) Attached() []*Node {
	return s.root.Children()
}
