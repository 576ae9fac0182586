package avatar

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoders for embedded textures
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

// builder converts one decoded document into scene objects.
type builder struct {
	doc  *gltf.Document
	opts Options
	log  *zap.Logger

	nodes     []*scene.Node
	meshes    []*scene.Mesh
	materials []*scene.Material
	textures  map[int]*scene.Texture
	skins     []*scene.Skin
}

func build(ctx context.Context, doc *gltf.Document, opts Options) (*Model, error) {
	b := &builder{
		doc:      doc,
		opts:     opts,
		log:      opts.Logger,
		textures: make(map[int]*scene.Texture),
	}

	if err := b.buildMaterials(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.buildMeshes(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.buildNodes(); err != nil {
		return nil, err
	}
	if err := b.buildSkins(); err != nil {
		return nil, err
	}

	root := scene.NewNode(opts.Name)
	for _, idx := range b.sceneRoots() {
		root.AddChild(b.nodes[idx])
	}

	m := &Model{Format: FormatGLTF, Humanoid: map[string]*scene.Node{}}
	if err := b.readVRM(m); err != nil {
		return nil, err
	}

	if m.Format == FormatVRM0 {
		// VRM 0.x avatars face -Z; turn them toward the camera.
		root.Rotation = mgl32.QuatRotate(mgl32.DegToRad(180), mgl32.Vec3{0, 1, 0})
	}
	normalize(root, opts.TargetHeight)

	clips, err := b.buildClips()
	if err != nil {
		return nil, err
	}
	for _, c := range clips {
		m.Clips = append(m.Clips, c.Name)
	}

	var pose scene.PoseDriver
	if len(clips) > 0 || len(m.Humanoid) > 0 || len(m.Expressions) > 0 {
		m.Driver = newDriver(clips, m.Humanoid, m.Expressions)
		pose = m.Driver.Advance
	}

	m.Bundle = scene.NewBundle(opts.Name, root, pose, nil)
	m.Stats = root.Stats()
	return m, nil
}

// sceneRoots returns the top-level node indices of the default scene, or
// every parentless node when the document names no scene.
func (b *builder) sceneRoots() []int {
	doc := b.doc
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}
	var roots []int
	for i, n := range b.nodes {
		if n.Parent() == nil {
			roots = append(roots, i)
		}
	}
	return roots
}

func (b *builder) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(b.doc.Accessors) {
		return nil, parseErr("accessor %d out of range", idx)
	}
	return b.doc.Accessors[idx], nil
}

func (b *builder) buildNodes() error {
	doc := b.doc
	b.nodes = make([]*scene.Node, len(doc.Nodes))
	for i, gn := range doc.Nodes {
		name := gn.Name
		if name == "" {
			name = fmt.Sprintf("node_%d", i)
		}
		n := scene.NewNode(name)

		if m := gn.MatrixOrDefault(); m != gltf.DefaultMatrix {
			n.Translation, n.Rotation, n.Scale = decompose(toMat4(m))
		} else {
			t, r, s := gn.TranslationOrDefault(), gn.RotationOrDefault(), gn.ScaleOrDefault()
			n.Translation = mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])}
			n.Rotation = mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
			n.Scale = mgl32.Vec3{float32(s[0]), float32(s[1]), float32(s[2])}
		}

		if gn.Mesh != nil {
			if *gn.Mesh >= len(b.meshes) {
				return parseErr("node %d references mesh %d", i, *gn.Mesh)
			}
			n.Mesh = b.meshes[*gn.Mesh]
		}
		b.nodes[i] = n
	}

	for i, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < 0 || c >= len(b.nodes) || c == i {
				return parseErr("node %d has invalid child %d", i, c)
			}
			if b.nodes[c].Parent() != nil {
				return parseErr("node %d has two parents", c)
			}
			b.nodes[i].AddChild(b.nodes[c])
		}
	}
	return nil
}

func (b *builder) buildSkins() error {
	doc := b.doc
	b.skins = make([]*scene.Skin, len(doc.Skins))
	for i, gs := range doc.Skins {
		skin := &scene.Skin{}
		for _, j := range gs.Joints {
			if j < 0 || j >= len(b.nodes) {
				return parseErr("skin %d joint %d out of range", i, j)
			}
			skin.Joints = append(skin.Joints, b.nodes[j])
		}
		if gs.InverseBindMatrices != nil {
			acr, err := b.accessor(*gs.InverseBindMatrices)
			if err != nil {
				return err
			}
			data, err := modeler.ReadAccessor(doc, acr, nil)
			if err != nil {
				return fmt.Errorf("%w: skin %d inverse bind matrices: %v", ErrParse, i, err)
			}
			mats, ok := data.([][4][4]float32)
			if !ok {
				return parseErr("skin %d inverse bind matrices have type %T", i, data)
			}
			for _, m := range mats {
				var out mgl32.Mat4
				for c := 0; c < 4; c++ {
					for r := 0; r < 4; r++ {
						out[c*4+r] = m[c][r]
					}
				}
				skin.InverseBind = append(skin.InverseBind, out)
			}
		}
		b.skins[i] = skin
	}

	for i, gn := range doc.Nodes {
		if gn.Skin == nil {
			continue
		}
		if *gn.Skin >= len(b.skins) {
			return parseErr("node %d references skin %d", i, *gn.Skin)
		}
		b.nodes[i].Skin = b.skins[*gn.Skin]
	}
	return nil
}

func (b *builder) buildMeshes() error {
	doc := b.doc
	b.meshes = make([]*scene.Mesh, len(doc.Meshes))
	for i, gm := range doc.Meshes {
		mesh := &scene.Mesh{Name: gm.Name}
		targets := 0
		for p, gp := range gm.Primitives {
			if gp.Mode != gltf.PrimitiveTriangles {
				b.log.Debug("skipping non-triangle primitive", zap.Int("mesh", i), zap.Int("primitive", p))
				continue
			}
			prim, err := b.buildPrimitive(gp)
			if err != nil {
				return fmt.Errorf("mesh %d primitive %d: %w", i, p, err)
			}
			targets = max(targets, len(prim.Targets))
			mesh.Primitives = append(mesh.Primitives, prim)
		}

		mesh.Weights = make([]float32, targets)
		for w := range mesh.Weights {
			if w < len(gm.Weights) {
				mesh.Weights[w] = float32(gm.Weights[w])
			}
		}
		b.meshes[i] = mesh
	}
	return nil
}

func (b *builder) buildPrimitive(gp *gltf.Primitive) (*scene.Primitive, error) {
	doc := b.doc
	prim := &scene.Primitive{Material: scene.DefaultMaterial()}

	posIdx, ok := gp.Attributes[gltf.POSITION]
	if !ok {
		return nil, parseErr("primitive has no POSITION attribute")
	}
	acr, err := b.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	if prim.Positions, err = modeler.ReadPosition(doc, acr, nil); err != nil {
		return nil, fmt.Errorf("%w: positions: %v", ErrParse, err)
	}

	if idx, ok := gp.Attributes[gltf.NORMAL]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if prim.Normals, err = modeler.ReadNormal(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("%w: normals: %v", ErrParse, err)
		}
	}
	if idx, ok := gp.Attributes[gltf.TEXCOORD_0]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if prim.UVs, err = modeler.ReadTextureCoord(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("%w: texcoords: %v", ErrParse, err)
		}
	}
	if idx, ok := gp.Attributes[gltf.JOINTS_0]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if prim.Joints, err = modeler.ReadJoints(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("%w: joints: %v", ErrParse, err)
		}
	}
	if idx, ok := gp.Attributes[gltf.WEIGHTS_0]; ok {
		if acr, err = b.accessor(idx); err != nil {
			return nil, err
		}
		if prim.Weights, err = modeler.ReadWeights(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("%w: weights: %v", ErrParse, err)
		}
	}
	if gp.Indices != nil {
		if acr, err = b.accessor(*gp.Indices); err != nil {
			return nil, err
		}
		if prim.Indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return nil, fmt.Errorf("%w: indices: %v", ErrParse, err)
		}
		for _, ix := range prim.Indices {
			if int(ix) >= len(prim.Positions) {
				return nil, parseErr("index %d exceeds %d vertices", ix, len(prim.Positions))
			}
		}
	}

	for t, attrs := range gp.Targets {
		target := scene.MorphTarget{}
		if idx, ok := attrs[gltf.POSITION]; ok {
			if acr, err = b.accessor(idx); err != nil {
				return nil, err
			}
			if target.Positions, err = modeler.ReadPosition(doc, acr, nil); err != nil {
				return nil, fmt.Errorf("%w: morph target %d: %v", ErrParse, t, err)
			}
		}
		prim.Targets = append(prim.Targets, target)
	}

	if gp.Material != nil {
		if *gp.Material >= len(b.materials) {
			return nil, parseErr("material %d out of range", *gp.Material)
		}
		prim.Material = b.materials[*gp.Material]
	}
	return prim, nil
}

func (b *builder) buildMaterials() error {
	b.materials = make([]*scene.Material, len(b.doc.Materials))
	for i, gm := range b.doc.Materials {
		mat := scene.DefaultMaterial()
		mat.Name = gm.Name
		mat.DoubleSided = gm.DoubleSided
		mat.AlphaCutoff = float32(gm.AlphaCutoffOrDefault())
		switch gm.AlphaMode {
		case gltf.AlphaMask:
			mat.AlphaMode = scene.AlphaMask
		case gltf.AlphaBlend:
			mat.AlphaMode = scene.AlphaBlend
		}

		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			c := pbr.BaseColorFactorOrDefault()
			mat.BaseColor = mgl32.Vec4{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}
			if pbr.BaseColorTexture != nil {
				tex, err := b.texture(pbr.BaseColorTexture.Index)
				if err != nil {
					return err
				}
				mat.Texture = tex
			}
		}
		b.materials[i] = mat
	}
	return nil
}

// texture decodes a glTF texture once. A texture whose image cannot be
// decoded is logged and left without pixels so the material still draws.
func (b *builder) texture(idx int) (*scene.Texture, error) {
	if t, ok := b.textures[idx]; ok {
		return t, nil
	}
	if idx < 0 || idx >= len(b.doc.Textures) {
		return nil, parseErr("texture %d out of range", idx)
	}
	gt := b.doc.Textures[idx]

	source := -1
	if gt.Source != nil {
		source = *gt.Source
	}
	if ext, ok := gt.Extensions[extTextureWebP]; ok {
		var webp struct {
			Source *int `json:"source"`
		}
		if err := decodeExtension(ext, &webp); err == nil && webp.Source != nil {
			source = *webp.Source
		}
	}
	if source < 0 || source >= len(b.doc.Images) {
		return nil, parseErr("texture %d has no valid image source", idx)
	}

	tex := &scene.Texture{Name: b.doc.Images[source].Name}
	img, err := b.decodeImage(b.doc.Images[source])
	if err != nil {
		b.log.Warn("texture not decoded", zap.Int("texture", idx), zap.Error(err))
	} else {
		tex.Image = img
	}
	b.textures[idx] = tex
	return tex, nil
}

func (b *builder) decodeImage(gi *gltf.Image) (*image.RGBA, error) {
	var data []byte
	var err error
	switch {
	case gi.BufferView != nil:
		if *gi.BufferView >= len(b.doc.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", *gi.BufferView)
		}
		data, err = modeler.ReadBufferView(b.doc, b.doc.BufferViews[*gi.BufferView])
	case gi.IsEmbeddedResource():
		data, err = gi.MarshalData()
	case gi.URI != "" && b.opts.BaseDir != "":
		var name string
		if name, err = url.PathUnescape(gi.URI); err == nil {
			data, err = os.ReadFile(filepath.Join(b.opts.BaseDir, filepath.FromSlash(name)))
		}
	default:
		return nil, fmt.Errorf("image %q has no data", gi.Name)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func toMat4(m [16]float64) mgl32.Mat4 {
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// decompose splits an affine matrix without shear into T, R and S.
func decompose(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3) {
	t := m.Col(3).Vec3()
	s := mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}

	rot := mgl32.Ident4()
	for c := 0; c < 3; c++ {
		if s[c] == 0 {
			continue
		}
		col := m.Col(c).Vec3().Mul(1 / s[c])
		rot.SetCol(c, col.Vec4(0))
	}
	return t, mgl32.Mat4ToQuat(rot).Normalize(), s
}
