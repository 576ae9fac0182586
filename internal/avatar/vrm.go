package avatar

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

const (
	extVRM0        = "VRM"
	extVRM1        = "VRMC_vrm"
	extTextureWebP = "EXT_texture_webp"
)

// humanBoneOrder lists the VRM humanoid bones from the root outward.
var humanBoneOrder = []string{
	"hips", "spine", "chest", "upperChest", "neck", "head", "jaw",
	"leftEye", "rightEye",
	"leftShoulder", "leftUpperArm", "leftLowerArm", "leftHand",
	"rightShoulder", "rightUpperArm", "rightLowerArm", "rightHand",
	"leftUpperLeg", "leftLowerLeg", "leftFoot", "leftToes",
	"rightUpperLeg", "rightLowerLeg", "rightFoot", "rightToes",
	"leftThumbMetacarpal", "leftThumbProximal", "leftThumbDistal",
	"leftIndexProximal", "leftIndexIntermediate", "leftIndexDistal",
	"leftMiddleProximal", "leftMiddleIntermediate", "leftMiddleDistal",
	"leftRingProximal", "leftRingIntermediate", "leftRingDistal",
	"leftLittleProximal", "leftLittleIntermediate", "leftLittleDistal",
	"rightThumbMetacarpal", "rightThumbProximal", "rightThumbDistal",
	"rightIndexProximal", "rightIndexIntermediate", "rightIndexDistal",
	"rightMiddleProximal", "rightMiddleIntermediate", "rightMiddleDistal",
	"rightRingProximal", "rightRingIntermediate", "rightRingDistal",
	"rightLittleProximal", "rightLittleIntermediate", "rightLittleDistal",
}

// vrm0ThumbNames maps VRM 0.x thumb bones to their 1.0 names.
var vrm0ThumbNames = map[string]string{
	"leftThumbProximal":      "leftThumbMetacarpal",
	"leftThumbIntermediate":  "leftThumbProximal",
	"rightThumbProximal":     "rightThumbMetacarpal",
	"rightThumbIntermediate": "rightThumbProximal",
}

// MorphBind drives one morph target weight from an expression.
type MorphBind struct {
	Mesh   *scene.Mesh
	Index  int
	Weight float32 // weight applied at expression weight 1
}

// Expression is a named blend shape group such as "happy" or "blink".
type Expression struct {
	Name     string
	Preset   bool
	IsBinary bool
	Binds    []MorphBind
}

type vrm0Extension struct {
	Meta struct {
		Title       string `json:"title"`
		Version     string `json:"version"`
		Author      string `json:"author"`
		LicenseName string `json:"licenseName"`
	} `json:"meta"`
	Humanoid struct {
		HumanBones []struct {
			Bone string `json:"bone"`
			Node int    `json:"node"`
		} `json:"humanBones"`
	} `json:"humanoid"`
	BlendShapeMaster struct {
		BlendShapeGroups []struct {
			Name       string `json:"name"`
			PresetName string `json:"presetName"`
			IsBinary   bool   `json:"isBinary"`
			Binds      []struct {
				Mesh   int     `json:"mesh"`
				Index  int     `json:"index"`
				Weight float32 `json:"weight"` // 0-100
			} `json:"binds"`
		} `json:"blendShapeGroups"`
	} `json:"blendShapeMaster"`
}

type vrm1Expression struct {
	IsBinary         bool `json:"isBinary"`
	MorphTargetBinds []struct {
		Node   int     `json:"node"`
		Index  int     `json:"index"`
		Weight float32 `json:"weight"` // 0-1
	} `json:"morphTargetBinds"`
}

type vrm1Extension struct {
	SpecVersion string `json:"specVersion"`
	Meta        struct {
		Name       string   `json:"name"`
		Version    string   `json:"version"`
		Authors    []string `json:"authors"`
		LicenseURL string   `json:"licenseUrl"`
	} `json:"meta"`
	Humanoid struct {
		HumanBones map[string]struct {
			Node int `json:"node"`
		} `json:"humanBones"`
	} `json:"humanoid"`
	Expressions struct {
		Preset map[string]vrm1Expression `json:"preset"`
		Custom map[string]vrm1Expression `json:"custom"`
	} `json:"expressions"`
}

// decodeExtension decodes an extension value, which the glTF decoder leaves
// as raw JSON for extensions it does not know.
func decodeExtension(v any, out any) error {
	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, out)
}

func (b *builder) readVRM(m *Model) error {
	if v, ok := b.doc.Extensions[extVRM1]; ok {
		var ext vrm1Extension
		if err := decodeExtension(v, &ext); err != nil {
			return fmt.Errorf("%w: %s extension: %v", ErrParse, extVRM1, err)
		}
		m.Format = FormatVRM1
		return b.applyVRM1(m, &ext)
	}
	if v, ok := b.doc.Extensions[extVRM0]; ok {
		var ext vrm0Extension
		if err := decodeExtension(v, &ext); err != nil {
			return fmt.Errorf("%w: %s extension: %v", ErrParse, extVRM0, err)
		}
		m.Format = FormatVRM0
		return b.applyVRM0(m, &ext)
	}
	return nil
}

func (b *builder) node(idx int) (*scene.Node, error) {
	if idx < 0 || idx >= len(b.nodes) {
		return nil, parseErr("node %d out of range", idx)
	}
	return b.nodes[idx], nil
}

func (b *builder) applyVRM0(m *Model, ext *vrm0Extension) error {
	m.Meta = Meta{
		Title:   ext.Meta.Title,
		Version: ext.Meta.Version,
		License: ext.Meta.LicenseName,
	}
	if ext.Meta.Author != "" {
		m.Meta.Authors = []string{ext.Meta.Author}
	}

	for _, hb := range ext.Humanoid.HumanBones {
		n, err := b.node(hb.Node)
		if err != nil {
			return fmt.Errorf("humanoid bone %q: %w", hb.Bone, err)
		}
		name := hb.Bone
		if renamed, ok := vrm0ThumbNames[name]; ok {
			name = renamed
		}
		m.Humanoid[name] = n
	}

	for _, g := range ext.BlendShapeMaster.BlendShapeGroups {
		e := &Expression{Name: g.Name, IsBinary: g.IsBinary}
		if g.PresetName != "" && g.PresetName != "unknown" {
			e.Name = g.PresetName
			e.Preset = true
		}
		for _, bind := range g.Binds {
			if bind.Mesh < 0 || bind.Mesh >= len(b.meshes) {
				return parseErr("expression %q binds mesh %d", g.Name, bind.Mesh)
			}
			e.Binds = append(e.Binds, MorphBind{
				Mesh:   b.meshes[bind.Mesh],
				Index:  bind.Index,
				Weight: bind.Weight / 100,
			})
		}
		m.Expressions = append(m.Expressions, e)
	}
	return nil
}

func (b *builder) applyVRM1(m *Model, ext *vrm1Extension) error {
	m.Meta = Meta{
		Title:   ext.Meta.Name,
		Version: ext.Meta.Version,
		Authors: ext.Meta.Authors,
		License: ext.Meta.LicenseURL,
	}

	for bone, hb := range ext.Humanoid.HumanBones {
		n, err := b.node(hb.Node)
		if err != nil {
			return fmt.Errorf("humanoid bone %q: %w", bone, err)
		}
		m.Humanoid[bone] = n
	}

	add := func(name string, preset bool, src vrm1Expression) error {
		e := &Expression{Name: name, Preset: preset, IsBinary: src.IsBinary}
		for _, bind := range src.MorphTargetBinds {
			n, err := b.node(bind.Node)
			if err != nil {
				return fmt.Errorf("expression %q: %w", name, err)
			}
			if n.Mesh == nil {
				return parseErr("expression %q binds node %d without a mesh", name, bind.Node)
			}
			e.Binds = append(e.Binds, MorphBind{Mesh: n.Mesh, Index: bind.Index, Weight: bind.Weight})
		}
		m.Expressions = append(m.Expressions, e)
		return nil
	}

	for _, name := range sortedKeys(ext.Expressions.Preset) {
		if err := add(name, true, ext.Expressions.Preset[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(ext.Expressions.Custom) {
		if err := add(name, false, ext.Expressions.Custom[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
