package renderer

import (
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

// vertexFloats is the interleaved layout: position, normal, uv, joints, weights.
const vertexFloats = 3 + 3 + 2 + 4 + 4

type gpuPrimitive struct {
	vao, vbo, ebo uint32
	indexCount    int32
	vertexCount   int
	version       uint64 // mesh version the vertex data was built from
}

// interleave packs a primitive's attributes into one float slice. Missing
// normals point up and missing weights bind the vertex fully to joint 0.
func interleave(p *scene.Primitive, positions [][3]float32) []float32 {
	skinned := p.Skinned()
	out := make([]float32, 0, len(positions)*vertexFloats)
	for i, pos := range positions {
		out = append(out, pos[0], pos[1], pos[2])

		if i < len(p.Normals) {
			n := p.Normals[i]
			out = append(out, n[0], n[1], n[2])
		} else {
			out = append(out, 0, 1, 0)
		}

		if i < len(p.UVs) {
			out = append(out, p.UVs[i][0], p.UVs[i][1])
		} else {
			out = append(out, 0, 0)
		}

		if skinned {
			j, w := p.Joints[i], p.Weights[i]
			out = append(out, float32(j[0]), float32(j[1]), float32(j[2]), float32(j[3]))
			out = append(out, w[0], w[1], w[2], w[3])
		} else {
			out = append(out, 0, 0, 0, 0, 1, 0, 0, 0)
		}
	}
	return out
}

// sequentialIndices returns 0..n-1 for non-indexed primitives.
func sequentialIndices(n int) []uint32 {
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = uint32(i)
	}
	return idx
}

func uploadPrimitive(p *scene.Primitive, m *scene.Mesh) *gpuPrimitive {
	positions := p.Positions
	if len(p.Targets) > 0 && m.Morphed() {
		positions = p.MorphedPositions(m.Weights)
	}
	vertices := interleave(p, positions)
	indices := p.Indices
	if len(indices) == 0 {
		indices = sequentialIndices(len(positions))
	}

	g := &gpuPrimitive{vertexCount: len(positions), version: m.Version()}
	if len(vertices) == 0 || len(indices) == 0 {
		return g
	}

	gl.GenVertexArrays(1, &g.vao)
	gl.BindVertexArray(g.vao)

	gl.GenBuffers(1, &g.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
	usage := uint32(gl.STATIC_DRAW)
	if len(p.Targets) > 0 {
		usage = gl.DYNAMIC_DRAW
	}
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, unsafe.Pointer(&vertices[0]), usage)

	stride := int32(vertexFloats * 4)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 2, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointerWithOffset(3, 4, gl.FLOAT, false, stride, 8*4)
	gl.EnableVertexAttribArray(3)
	gl.VertexAttribPointerWithOffset(4, 4, gl.FLOAT, false, stride, 12*4)
	gl.EnableVertexAttribArray(4)

	gl.GenBuffers(1, &g.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, g.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, unsafe.Pointer(&indices[0]), gl.STATIC_DRAW)

	g.indexCount = int32(len(indices))
	gl.BindVertexArray(0)
	return g
}

// refresh re-uploads vertex data after morph weights changed.
func (g *gpuPrimitive) refresh(p *scene.Primitive, m *scene.Mesh) {
	if g.vbo == 0 || g.version == m.Version() {
		return
	}
	vertices := interleave(p, p.MorphedPositions(m.Weights))
	gl.BindBuffer(gl.ARRAY_BUFFER, g.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*4, unsafe.Pointer(&vertices[0]))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	g.version = m.Version()
}

func (g *gpuPrimitive) destroy() {
	if g.vao != 0 {
		gl.DeleteVertexArrays(1, &g.vao)
	}
	if g.vbo != 0 {
		gl.DeleteBuffers(1, &g.vbo)
	}
	if g.ebo != 0 {
		gl.DeleteBuffers(1, &g.ebo)
	}
	*g = gpuPrimitive{}
}

func uploadTexture(img *image.RGBA) uint32 {
	var texID uint32
	gl.GenTextures(1, &texID)
	gl.BindTexture(gl.TEXTURE_2D, texID)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(img.Bounds().Dx()), int32(img.Bounds().Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&img.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	return texID
}

func whiteTexture() uint32 {
	var texID uint32
	gl.GenTextures(1, &texID)
	gl.BindTexture(gl.TEXTURE_2D, texID)
	white := []uint8{255, 255, 255, 255}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, 1, 1, 0, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&white[0]))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	return texID
}

// flipRows converts bottom-up GL rows into a top-down RGBA image.
func flipRows(pixels []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		copy(img.Pix[y*img.Stride:y*img.Stride+rowSize], pixels[src:src+rowSize])
	}
	return img
}
