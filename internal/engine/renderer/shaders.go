package renderer

// MaxJoints is the size of the joint matrix palette. Skins with more joints
// are drawn unskinned.
const MaxJoints = 128

const vertexShaderSource = `
#version 410 core

layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in vec2 aTexCoord;
layout (location = 3) in vec4 aJoints;
layout (location = 4) in vec4 aWeights;

uniform mat4 uViewProj;
uniform mat4 uModel;
uniform mat4 uJoints[128];
uniform bool uSkinned;

out vec3 vNormal;
out vec2 vTexCoord;

void main() {
	mat4 skin = mat4(1.0);
	if (uSkinned) {
		skin = aWeights.x * uJoints[int(aJoints.x)]
		     + aWeights.y * uJoints[int(aJoints.y)]
		     + aWeights.z * uJoints[int(aJoints.z)]
		     + aWeights.w * uJoints[int(aJoints.w)];
	}
	mat4 world = uModel * skin;
	vNormal = mat3(world) * aNormal;
	vTexCoord = aTexCoord;
	gl_Position = uViewProj * world * vec4(aPosition, 1.0);
}
` + "\x00"

const fragmentShaderSource = `
#version 410 core

in vec3 vNormal;
in vec2 vTexCoord;

uniform sampler2D uTexture;
uniform vec4 uBaseColor;
uniform int uAlphaMode;
uniform float uAlphaCutoff;
uniform vec3 uAmbient;
uniform vec3 uLightColor;
uniform vec3 uLightDir;

out vec4 FragColor;

void main() {
	vec4 color = texture(uTexture, vTexCoord) * uBaseColor;
	if (uAlphaMode == 1 && color.a < uAlphaCutoff) {
		discard;
	}
	if (uAlphaMode == 0) {
		color.a = 1.0;
	}

	vec3 n = normalize(vNormal);
	if (!gl_FrontFacing) {
		n = -n;
	}
	float diffuse = max(dot(n, -normalize(uLightDir)), 0.0);
	vec3 lit = color.rgb * (uAmbient + uLightColor * diffuse);
	FragColor = vec4(lit, color.a);
}
` + "\x00"
