package renderer

import (
	"testing"

	"github.com/Faultbox/avatar-studio/internal/engine/scene"
)

func TestInterleave(t *testing.T) {
	tests := []struct {
		name string
		prim *scene.Primitive
		want []float32
	}{
		{
			name: "defaults",
			prim: &scene.Primitive{Positions: [][3]float32{{1, 2, 3}}},
			want: []float32{1, 2, 3, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0},
		},
		{
			name: "skinned",
			prim: &scene.Primitive{
				Positions: [][3]float32{{1, 2, 3}},
				Normals:   [][3]float32{{0, 0, 1}},
				UVs:       [][2]float32{{0.5, 0.25}},
				Joints:    [][4]uint16{{3, 4, 0, 0}},
				Weights:   [][4]float32{{0.75, 0.25, 0, 0}},
			},
			want: []float32{1, 2, 3, 0, 0, 1, 0.5, 0.25, 3, 4, 0, 0, 0.75, 0.25, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := interleave(tt.prim, tt.prim.Positions)
			if len(got) != vertexFloats {
				t.Fatalf("got %d floats, want %d", len(got), vertexFloats)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("float %d = %g, want %g (%v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

func TestSequentialIndices(t *testing.T) {
	idx := sequentialIndices(4)
	for i, v := range idx {
		if v != uint32(i) {
			t.Fatalf("index %d = %d", i, v)
		}
	}
}

func TestFlipRows(t *testing.T) {
	// Two rows of one pixel each, bottom row first as GL returns them.
	pixels := []byte{
		1, 1, 1, 255,
		2, 2, 2, 255,
	}
	img := flipRows(pixels, 1, 2)
	if img.Pix[0] != 2 || img.Pix[4] != 1 {
		t.Errorf("rows not flipped: %v", img.Pix)
	}
}
