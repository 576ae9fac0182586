package avatar

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// fixture builds a small two-node avatar: a "hips" joint with a child "body"
// mesh that is 2 units tall and carries one morph target.
type fixture struct {
	doc *gltf.Document
}

func newFixture() *fixture {
	doc := gltf.NewDocument()

	pos := modeler.WritePosition(doc, [][3]float32{
		{-0.5, 0, 0},
		{0.5, 2, 0},
		{0, 1, 0.4},
	})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})
	target := modeler.WritePosition(doc, [][3]float32{
		{0, 0, 0},
		{0, 0.5, 0},
		{0, 0, 0},
	})

	prim := &gltf.Primitive{
		Attributes: map[string]int{gltf.POSITION: pos},
		Indices:    gltf.Index(idx),
		Mode:       gltf.PrimitiveTriangles,
	}
	prim.Targets = append(prim.Targets, map[string]int{gltf.POSITION: target})
	doc.Meshes = []*gltf.Mesh{{Name: "body", Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{
		{Name: "hips", Children: []int{1}},
		{Name: "body", Mesh: gltf.Index(0)},
	}
	doc.Scenes = []*gltf.Scene{{Nodes: []int{0}}}
	doc.Scene = gltf.Index(0)
	return &fixture{doc: doc}
}

// withClip adds a STEP translation clip on the body node.
func (f *fixture) withClip(name string) *fixture {
	in := modeler.WriteAccessor(f.doc, gltf.TargetNone, []float32{0, 0.5, 1})
	out := modeler.WriteAccessor(f.doc, gltf.TargetNone, [][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 1, 0}})
	f.doc.Animations = append(f.doc.Animations, &gltf.Animation{
		Name: name,
		Samplers: []*gltf.AnimationSampler{{
			Input:         in,
			Output:        out,
			Interpolation: gltf.InterpolationStep,
		}},
		Channels: []*gltf.Channel{{
			Sampler: 0,
			Target:  gltf.ChannelTarget{Node: gltf.Index(1), Path: gltf.TRSTranslation},
		}},
	})
	return f
}

func (f *fixture) withExtension(t *testing.T, name string, v any) *fixture {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	if f.doc.Extensions == nil {
		f.doc.Extensions = map[string]any{}
	}
	f.doc.Extensions[name] = json.RawMessage(raw)
	f.doc.ExtensionsUsed = append(f.doc.ExtensionsUsed, name)
	return f
}

func (f *fixture) glb(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(f.doc); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func vrm0Fixture() map[string]any {
	return map[string]any{
		"meta": map[string]any{
			"title":       "Fixture",
			"version":     "1",
			"author":      "someone",
			"licenseName": "CC0",
		},
		"humanoid": map[string]any{
			"humanBones": []map[string]any{
				{"bone": "hips", "node": 0},
				{"bone": "leftThumbProximal", "node": 1},
			},
		},
		"blendShapeMaster": map[string]any{
			"blendShapeGroups": []map[string]any{
				{
					"name":       "Joy",
					"presetName": "joy",
					"binds":      []map[string]any{{"mesh": 0, "index": 0, "weight": 100}},
				},
				{
					"name":       "Custom",
					"presetName": "unknown",
					"isBinary":   true,
					"binds":      []map[string]any{{"mesh": 0, "index": 0, "weight": 50}},
				},
			},
		},
	}
}

func vrm1Fixture() map[string]any {
	return map[string]any{
		"specVersion": "1.0",
		"meta": map[string]any{
			"name":       "Fixture One",
			"version":    "2",
			"authors":    []string{"a", "b"},
			"licenseUrl": "https://vrm.dev/licenses/1.0/",
		},
		"humanoid": map[string]any{
			"humanBones": map[string]any{
				"hips":  map[string]any{"node": 0},
				"spine": map[string]any{"node": 1},
			},
		},
		"expressions": map[string]any{
			"preset": map[string]any{
				"happy": map[string]any{
					"morphTargetBinds": []map[string]any{{"node": 1, "index": 0, "weight": 1}},
				},
				"blink": map[string]any{
					"isBinary":         true,
					"morphTargetBinds": []map[string]any{{"node": 1, "index": 0, "weight": 0.5}},
				},
			},
		},
	}
}
