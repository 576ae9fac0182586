package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Node is a transform in the scene graph with optional mesh and skin.
type Node struct {
	Name string

	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3

	Mesh *Mesh
	Skin *Skin

	children []*Node
	parent   *Node
}

// NewNode creates a node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Parent returns the node's parent, or nil for a detached or root node.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the node's children. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// AddChild attaches child under n, detaching it from any previous parent.
func (n *Node) AddChild(child *Node) {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
}

// RemoveChild detaches child from n. It reports whether child was found.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			child.parent = nil
			return true
		}
	}
	return false
}

// LocalMatrix returns T * R * S for the node.
func (n *Node) LocalMatrix() mgl32.Mat4 {
	t := mgl32.Translate3D(n.Translation.X(), n.Translation.Y(), n.Translation.Z())
	r := n.Rotation.Normalize().Mat4()
	s := mgl32.Scale3D(n.Scale.X(), n.Scale.Y(), n.Scale.Z())
	return t.Mul4(r).Mul4(s)
}

// WorldMatrix returns the node's transform composed with all its ancestors.
func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// Walk visits n and its descendants depth-first, passing each node's world
// matrix relative to parentWorld. Returning false from fn skips the subtree.
func (n *Node) Walk(parentWorld mgl32.Mat4, fn func(node *Node, world mgl32.Mat4) bool) {
	world := parentWorld.Mul4(n.LocalMatrix())
	if !fn(n, world) {
		return
	}
	for _, c := range n.children {
		c.Walk(world, fn)
	}
}

// Find returns the first node in the subtree with the given name.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Stats holds element counts for a subtree.
type Stats struct {
	Nodes     int
	Meshes    int
	Vertices  int
	Triangles int
}

// Stats counts nodes, meshes and geometry in the subtree rooted at n.
func (n *Node) Stats() Stats {
	var s Stats
	n.Walk(mgl32.Ident4(), func(node *Node, _ mgl32.Mat4) bool {
		s.Nodes++
		if node.Mesh != nil {
			s.Meshes++
			for _, p := range node.Mesh.Primitives {
				s.Vertices += len(p.Positions)
				s.Triangles += len(p.Indices) / 3
			}
		}
		return true
	})
	return s
}
