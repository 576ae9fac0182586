// Package renderer draws a scene graph into an offscreen OpenGL framebuffer
// and presents the result to a host surface as a texture.
package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/engine/camera"
	"github.com/Faultbox/avatar-studio/internal/engine/scene"
	"github.com/Faultbox/avatar-studio/internal/logger"
)

// ErrContextLost is returned by Render when the GL context is gone.
var ErrContextLost = errors.New("renderer: GL context lost")

// glContextLost is GL_CONTEXT_LOST, which the 4.1 core bindings do not export.
const glContextLost = 0x0507

// Target receives each rendered frame.
type Target interface {
	Version() string
	Present(texture uint32, width, height int)
}

// Renderer draws avatars with skinning, morph targets and one directional light.
// It must only be used on the thread owning the GL context.
type Renderer struct {
	out     Target
	target  *renderTarget
	program *program
	white   uint32

	primitives map[*scene.Primitive]*gpuPrimitive
	textures   map[*scene.Texture]uint32

	jointBuf []float32
}

// New creates a renderer drawing at width x height and presenting to out.
// gl.Init must already have been called on the current context.
func New(out Target, width, height int) (*Renderer, error) {
	if out == nil {
		return nil, errors.New("renderer: nil target")
	}

	target, err := newRenderTarget(int32(width), int32(height))
	if err != nil {
		return nil, fmt.Errorf("create render target: %w", err)
	}

	prog, err := newProgram()
	if err != nil {
		target.destroy()
		return nil, fmt.Errorf("create shader program: %w", err)
	}

	r := &Renderer{
		out:        out,
		target:     target,
		program:    prog,
		white:      whiteTexture(),
		primitives: make(map[*scene.Primitive]*gpuPrimitive),
		textures:   make(map[*scene.Texture]uint32),
		jointBuf:   make([]float32, 0, MaxJoints*16),
	}

	logger.Info("renderer created",
		zap.String("context", out.Version()),
		zap.Int("width", int(target.width)),
		zap.Int("height", int(target.height)))
	return r, nil
}

// Resize reallocates the offscreen target.
func (r *Renderer) Resize(width, height int) {
	r.target.resize(int32(width), int32(height))
}

type drawItem struct {
	node  *scene.Node
	world mgl32.Mat4
	prim  *scene.Primitive
	mat   *scene.Material
}

// Render draws s through cam and presents the frame to the target.
func (r *Renderer) Render(s *scene.Scene, cam *camera.Camera) error {
	restore := r.target.bind()

	bg := s.Background
	gl.ClearColor(bg[0], bg[1], bg[2], bg[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)

	p := r.program
	gl.UseProgram(p.id)

	viewProj := cam.ViewProjection()
	gl.UniformMatrix4fv(p.locViewProj, 1, false, &viewProj[0])

	amb := s.Lights.Ambient.Color.Mul(s.Lights.Ambient.Intensity)
	key := s.Lights.Directional.Color.Mul(s.Lights.Directional.Intensity)
	dir := s.Lights.Directional.Direction
	gl.Uniform3f(p.locAmbient, amb[0], amb[1], amb[2])
	gl.Uniform3f(p.locLightColor, key[0], key[1], key[2])
	gl.Uniform3f(p.locLightDir, dir[0], dir[1], dir[2])

	gl.ActiveTexture(gl.TEXTURE0)
	gl.Uniform1i(p.locTexture, 0)

	var opaque, blended []drawItem
	s.Root().Walk(mgl32.Ident4(), func(n *scene.Node, world mgl32.Mat4) bool {
		if n.Mesh == nil {
			return true
		}
		for _, prim := range n.Mesh.Primitives {
			mat := prim.Material
			if mat == nil {
				mat = scene.DefaultMaterial()
			}
			item := drawItem{node: n, world: world, prim: prim, mat: mat}
			if mat.AlphaMode == scene.AlphaBlend {
				blended = append(blended, item)
			} else {
				opaque = append(opaque, item)
			}
		}
		return true
	})

	gl.Disable(gl.BLEND)
	for _, it := range opaque {
		r.draw(it)
	}
	if len(blended) > 0 {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
		for _, it := range blended {
			r.draw(it)
		}
		gl.DepthMask(true)
		gl.Disable(gl.BLEND)
	}

	gl.BindVertexArray(0)
	restore()

	if err := checkError(); err != nil {
		return err
	}

	r.out.Present(r.target.colorTexture, int(r.target.width), int(r.target.height))
	return nil
}

func (r *Renderer) draw(it drawItem) {
	p := r.program
	mesh := it.node.Mesh

	g, ok := r.primitives[it.prim]
	if !ok {
		g = uploadPrimitive(it.prim, mesh)
		r.primitives[it.prim] = g
	} else if len(it.prim.Targets) > 0 {
		g.refresh(it.prim, mesh)
	}
	if g.indexCount == 0 {
		return
	}

	gl.UniformMatrix4fv(p.locModel, 1, false, &it.world[0])

	skin := it.node.Skin
	if skin != nil && it.prim.Skinned() && len(skin.Joints) <= MaxJoints {
		r.jointBuf = r.jointBuf[:0]
		for _, m := range skin.JointMatrices(it.world) {
			r.jointBuf = append(r.jointBuf, m[:]...)
		}
		gl.UniformMatrix4fv(p.locJoints, int32(len(skin.Joints)), false, &r.jointBuf[0])
		gl.Uniform1i(p.locSkinned, 1)
	} else {
		gl.Uniform1i(p.locSkinned, 0)
	}

	mat := it.mat
	gl.Uniform4f(p.locBaseColor, mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2], mat.BaseColor[3])
	gl.Uniform1i(p.locAlphaMode, int32(mat.AlphaMode))
	gl.Uniform1f(p.locAlphaCutoff, mat.AlphaCutoff)
	gl.BindTexture(gl.TEXTURE_2D, r.texture(mat.Texture))

	if mat.DoubleSided {
		gl.Disable(gl.CULL_FACE)
	} else {
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}

	gl.BindVertexArray(g.vao)
	gl.DrawElements(gl.TRIANGLES, g.indexCount, gl.UNSIGNED_INT, nil)
}

func (r *Renderer) texture(t *scene.Texture) uint32 {
	if t == nil {
		return r.white
	}
	if id, ok := r.textures[t]; ok {
		return id
	}
	id := r.white
	if t.Image != nil && len(t.Image.Pix) > 0 {
		id = uploadTexture(t.Image)
	}
	r.textures[t] = id
	return id
}

// Release frees GPU buffers and textures held for the subtree rooted at n.
func (r *Renderer) Release(n *scene.Node) {
	if n == nil {
		return
	}
	prims, texs := 0, 0
	n.Walk(mgl32.Ident4(), func(node *scene.Node, _ mgl32.Mat4) bool {
		if node.Mesh == nil {
			return true
		}
		for _, prim := range node.Mesh.Primitives {
			if g, ok := r.primitives[prim]; ok {
				g.destroy()
				delete(r.primitives, prim)
				prims++
			}
			if prim.Material == nil || prim.Material.Texture == nil {
				continue
			}
			if id, ok := r.textures[prim.Material.Texture]; ok {
				if id != r.white {
					gl.DeleteTextures(1, &id)
				}
				delete(r.textures, prim.Material.Texture)
				texs++
			}
		}
		return true
	})
	logger.Debug("released GPU resources", zap.String("node", n.Name),
		zap.Int("primitives", prims), zap.Int("textures", texs))
}

// Snapshot reads back the last rendered frame, top row first.
func (r *Renderer) Snapshot() (*image.RGBA, error) {
	pixels := r.target.readPixels()
	if err := checkError(); err != nil {
		return nil, err
	}
	return flipRows(pixels, int(r.target.width), int(r.target.height)), nil
}

// Close releases every GPU resource the renderer owns.
func (r *Renderer) Close() {
	for prim, g := range r.primitives {
		g.destroy()
		delete(r.primitives, prim)
	}
	for t, id := range r.textures {
		if id != r.white {
			gl.DeleteTextures(1, &id)
		}
		delete(r.textures, t)
	}
	if r.white != 0 {
		gl.DeleteTextures(1, &r.white)
		r.white = 0
	}
	r.program.destroy()
	r.target.destroy()
	logger.Info("renderer closed")
}

// checkError drains the GL error queue and reports the first error.
func checkError() error {
	var first uint32
	for i := 0; i < 8; i++ {
		code := gl.GetError()
		if code == gl.NO_ERROR {
			break
		}
		if code == glContextLost {
			return ErrContextLost
		}
		if first == 0 {
			first = code
		}
	}
	if first != 0 {
		return fmt.Errorf("renderer: GL error 0x%04x", first)
	}
	return nil
}
