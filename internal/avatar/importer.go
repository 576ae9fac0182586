// Package avatar imports rigged glTF and VRM avatars into scene bundles and
// drives their pose from animation clips or live motion capture.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

var (
	// ErrUnsupportedFormat is returned when the input is not glTF or VRM.
	ErrUnsupportedFormat = errors.New("avatar: unsupported format")

	// ErrParse wraps every structural failure in a recognized file.
	ErrParse = errors.New("avatar: parse error")
)

// Format identifies the flavor of an imported file.
type Format string

const (
	FormatGLTF Format = "glTF"
	FormatVRM0 Format = "VRM 0.x"
	FormatVRM1 Format = "VRM 1.0"
)

// Options controls an import.
type Options struct {
	// TargetHeight rescales the avatar to this height in meters. 0 keeps
	// the file's own scale.
	TargetHeight float32
	// BaseDir resolves external buffer and image URIs. ImportFile sets it.
	BaseDir string
	// Name labels the bundle. ImportFile defaults it to the file name.
	Name string

	Logger *zap.Logger
}

// Meta is descriptive information carried by VRM files.
type Meta struct {
	Title   string
	Version string
	Authors []string
	License string
}

// Model is the result of an import.
type Model struct {
	Bundle *scene.Bundle
	Format Format
	Meta   Meta

	// Humanoid maps VRM bone names such as "hips" or "leftUpperArm" to nodes.
	Humanoid    map[string]*scene.Node
	Expressions []*Expression
	Clips       []string
	Driver      *Driver

	Stats scene.Stats
}

// HumanBones returns the humanoid bone names in a stable order.
func (m *Model) HumanBones() []string {
	names := make([]string, 0, len(m.Humanoid))
	for _, bone := range humanBoneOrder {
		if _, ok := m.Humanoid[bone]; ok {
			names = append(names, bone)
		}
	}
	return names
}

// ImportFile imports the avatar at path.
func ImportFile(ctx context.Context, path string, opts Options) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Import(ctx, f, opts)
}

// Import reads a GLB, glTF JSON or VRM document from r.
func Import(ctx context.Context, r io.Reader, opts Options) (*Model, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "avatar"
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	if !sniff(data) {
		return nil, ErrUnsupportedFormat
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := new(gltf.Document)
	var dec *gltf.Decoder
	if opts.BaseDir != "" {
		dec = gltf.NewDecoderFS(bytes.NewReader(data), os.DirFS(opts.BaseDir))
	} else {
		dec = gltf.NewDecoder(bytes.NewReader(data))
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrParse, err)
	}

	m, err := build(ctx, doc, opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("model imported",
		zap.String("name", opts.Name),
		zap.String("format", string(m.Format)),
		zap.Int("nodes", m.Stats.Nodes),
		zap.Int("vertices", m.Stats.Vertices),
		zap.Int("bones", len(m.Humanoid)),
		zap.Int("expressions", len(m.Expressions)),
		zap.Int("clips", len(m.Clips)))
	return m, nil
}

// sniff reports whether data looks like binary glTF or a JSON document.
func sniff(data []byte) bool {
	if len(data) >= 4 && string(data[:4]) == "glTF" {
		return true
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}
