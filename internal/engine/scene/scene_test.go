package scene

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestNodeHierarchy(t *testing.T) {
	root := NewNode("root")
	hips := NewNode("hips")
	head := NewNode("head")
	root.AddChild(hips)
	hips.AddChild(head)

	if head.Parent() != hips || hips.Parent() != root {
		t.Fatal("parent links not set")
	}
	if root.Find("head") != head {
		t.Error("Find did not locate nested node")
	}
	if root.Find("tail") != nil {
		t.Error("Find returned a node for an unknown name")
	}

	other := NewNode("other")
	other.AddChild(head)
	if len(hips.Children()) != 0 {
		t.Errorf("reparenting left %d children on the old parent", len(hips.Children()))
	}
	if head.Parent() != other {
		t.Error("reparented node has wrong parent")
	}

	if other.RemoveChild(hips) {
		t.Error("RemoveChild reported success for a non-child")
	}
	if !other.RemoveChild(head) || head.Parent() != nil {
		t.Error("RemoveChild did not detach")
	}
}

func TestWorldMatrix(t *testing.T) {
	parent := NewNode("parent")
	parent.Translation = mgl32.Vec3{0, 1, 0}
	parent.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})

	child := NewNode("child")
	child.Translation = mgl32.Vec3{1, 0, 0}
	parent.AddChild(child)

	p := child.WorldMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	// +X rotated 90 degrees about Y lands on -Z.
	if !approx(p.X(), 0) || !approx(p.Y(), 1) || !approx(p.Z(), -1) {
		t.Errorf("unexpected world position %v", p)
	}

	var visited []string
	parent.Walk(mgl32.Ident4(), func(n *Node, world mgl32.Mat4) bool {
		visited = append(visited, n.Name)
		if n == child && !world.ApproxEqualThreshold(child.WorldMatrix(), 1e-5) {
			t.Error("Walk world matrix differs from WorldMatrix")
		}
		return true
	})
	if len(visited) != 2 {
		t.Errorf("expected 2 visited nodes, got %v", visited)
	}
}

func TestMorphedPositions(t *testing.T) {
	p := &Primitive{
		Positions: [][3]float32{{0, 0, 0}, {1, 0, 0}},
		Targets: []MorphTarget{
			{Positions: [][3]float32{{0, 1, 0}, {0, 1, 0}}},
			{Positions: [][3]float32{{0, 0, 2}, {0, 0, 2}}},
		},
	}

	out := p.MorphedPositions([]float32{0.5, 0})
	if out[1] != [3]float32{1, 0.5, 0} {
		t.Errorf("unexpected morphed position %v", out[1])
	}
	if p.Positions[1] != [3]float32{1, 0, 0} {
		t.Error("base positions were modified")
	}
}

func TestMeshVersion(t *testing.T) {
	m := &Mesh{Weights: make([]float32, 2)}

	m.SetWeight(0, 0)
	if m.Version() != 0 {
		t.Error("unchanged weight bumped the version")
	}
	m.SetWeight(1, 0.3)
	if m.Version() != 1 || !m.Morphed() {
		t.Errorf("expected version 1 and morphed, got %d/%v", m.Version(), m.Morphed())
	}
	m.SetWeight(5, 1)
	if m.Version() != 1 {
		t.Error("out of range weight bumped the version")
	}
}

func TestJointMatricesBindPose(t *testing.T) {
	joint := NewNode("joint")
	joint.Translation = mgl32.Vec3{0, 2, 0}
	skin := &Skin{
		Joints:      []*Node{joint},
		InverseBind: []mgl32.Mat4{mgl32.Translate3D(0, -2, 0)},
	}

	m := skin.JointMatrices(mgl32.Ident4())
	if !m[0].ApproxEqualThreshold(mgl32.Ident4(), 1e-5) {
		t.Errorf("bind pose joint matrix should be identity, got %v", m[0])
	}
}

func TestSceneAttachDetach(t *testing.T) {
	s := New(DefaultLights())
	a := NewNode("a")
	s.Attach(a)
	if len(s.Attached()) != 1 {
		t.Fatalf("expected 1 attached node, got %d", len(s.Attached()))
	}
	if !s.Detach(a) || len(s.Attached()) != 0 {
		t.Error("Detach did not remove node")
	}
	if s.Detach(a) {
		t.Error("second Detach reported success")
	}
}

func TestBundleReleaseOnce(t *testing.T) {
	root := NewNode("avatar")
	root.Mesh = &Mesh{Primitives: []*Primitive{{
		Positions: [][3]float32{{0, 0, 0}},
		Material:  &Material{Texture: &Texture{Name: "skin"}},
	}}}

	calls := 0
	b := NewBundle("avatar", root, func(float64) {}, func() { calls++ })
	b.Release()
	b.Release()

	if calls != 1 {
		t.Errorf("release hook ran %d times", calls)
	}
	if !b.Released() || b.Pose != nil {
		t.Error("bundle not marked released")
	}
	if root.Mesh.Primitives[0].Positions != nil {
		t.Error("geometry not dropped")
	}
}

func TestStats(t *testing.T) {
	root := NewNode("root")
	body := NewNode("body")
	body.Mesh = &Mesh{Primitives: []*Primitive{{
		Positions: make([][3]float32, 4),
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}}}
	root.AddChild(body)

	st := root.Stats()
	if st.Nodes != 2 || st.Meshes != 1 || st.Vertices != 4 || st.Triangles != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}
