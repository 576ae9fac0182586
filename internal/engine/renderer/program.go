package renderer

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// program is the linked avatar shader with its uniform locations.
type program struct {
	id uint32

	locViewProj    int32
	locModel       int32
	locJoints      int32
	locSkinned     int32
	locBaseColor   int32
	locTexture     int32
	locAlphaMode   int32
	locAlphaCutoff int32
	locAmbient     int32
	locLightColor  int32
	locLightDir    int32
}

func newProgram() (*program, error) {
	vs, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return nil, fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(fs)

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(id, logLength, nil, gl.Str(log))
		gl.DeleteProgram(id)
		return nil, fmt.Errorf("link failed: %s", log)
	}

	p := &program{id: id}
	p.locViewProj = p.uniform("uViewProj")
	p.locModel = p.uniform("uModel")
	p.locJoints = p.uniform("uJoints[0]")
	p.locSkinned = p.uniform("uSkinned")
	p.locBaseColor = p.uniform("uBaseColor")
	p.locTexture = p.uniform("uTexture")
	p.locAlphaMode = p.uniform("uAlphaMode")
	p.locAlphaCutoff = p.uniform("uAlphaCutoff")
	p.locAmbient = p.uniform("uAmbient")
	p.locLightColor = p.uniform("uLightColor")
	p.locLightDir = p.uniform("uLightDir")
	return p, nil
}

func (p *program) uniform(name string) int32 {
	return gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
}

func (p *program) destroy() {
	if p.id != 0 {
		gl.DeleteProgram(p.id)
		p.id = 0
	}
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %s", log)
	}

	return shader, nil
}
