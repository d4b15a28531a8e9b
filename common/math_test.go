package common

import (
	"math"
	"testing"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestMul4Identity(t *testing.T) {
	var id, m, out [16]float32
	Identity(id[:])
	for i := range m {
		m[i] = float32(i + 1)
	}
	Mul4(out[:], id[:], m[:])
	if out != m {
		t.Errorf("I*M = %v, want %v", out, m)
	}
	Mul4(out[:], m[:], id[:])
	if out != m {
		t.Errorf("M*I = %v, want %v", out, m)
	}
}

func TestMul4Aliasing(t *testing.T) {
	var a, b [16]float32
	BuildModelMatrix(a[:], [3]float32{1, 2, 3}, [3]float32{}, [3]float32{1, 1, 1})
	BuildModelMatrix(b[:], [3]float32{4, 5, 6}, [3]float32{}, [3]float32{1, 1, 1})
	Mul4(a[:], a[:], b[:])
	p := TransformPoint(a[:], 0, 0, 0)
	if !approx(p[0], 5) || !approx(p[1], 7) || !approx(p[2], 9) || !approx(p[3], 1) {
		t.Errorf("combined translation = %v, want (5,7,9,1)", p)
	}
}

func TestPerspectiveReversedZDepth(t *testing.T) {
	var proj [16]float32
	PerspectiveReversedZ(proj[:], math.Pi/2, 1, 0.5)

	tests := []struct {
		name  string
		z     float32
		depth float32
	}{
		{"near plane", -0.5, 1},
		{"twice near", -1, 0.5},
		{"far away", -5000, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := TransformPoint(proj[:], 0, 0, tt.z)
			if got := p[2] / p[3]; !approx(got, tt.depth) {
				t.Errorf("depth = %f, want %f", got, tt.depth)
			}
		})
	}
}

func TestOrthographicReversedZDepth(t *testing.T) {
	var proj [16]float32
	OrthographicReversedZ(proj[:], -10, 10, -10, 10, 1, 101)

	near := TransformPoint(proj[:], 10, -10, -1)
	far := TransformPoint(proj[:], 0, 0, -101)
	if !approx(near[2], 1) || !approx(near[0], 1) || !approx(near[1], -1) {
		t.Errorf("near corner = %v, want x=1 y=-1 z=1", near)
	}
	if !approx(far[2], 0) {
		t.Errorf("far depth = %f, want 0", far[2])
	}
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	var view [16]float32
	LookAt(view[:], [3]float32{3, 4, 5}, [3]float32{0, 0, 0}, [3]float32{0, 1, 0})
	p := TransformPoint(view[:], 3, 4, 5)
	if !approx(p[0], 0) || !approx(p[1], 0) || !approx(p[2], 0) {
		t.Errorf("eye in view space = %v, want origin", p)
	}
	target := TransformPoint(view[:], 0, 0, 0)
	if !approx(target[2], -float32(math.Sqrt(50))) {
		t.Errorf("target z = %f, want %f", target[2], -math.Sqrt(50))
	}
}

func TestMaxAxisScale(t *testing.T) {
	var m [16]float32
	BuildModelMatrix(m[:], [3]float32{}, [3]float32{0.3, 1.1, 0.2}, [3]float32{1, 4, 2})
	if got := MaxAxisScale(m[:]); !approx(got, 4) {
		t.Errorf("MaxAxisScale = %f, want 4", got)
	}
}

func TestDivCeil(t *testing.T) {
	tests := []struct{ n, d, want uint32 }{
		{0, 64, 0}, {1, 64, 1}, {64, 64, 1}, {65, 64, 2}, {7, 2, 4},
	}
	for _, tt := range tests {
		if got := DivCeil(tt.n, tt.d); got != tt.want {
			t.Errorf("DivCeil(%d, %d) = %d, want %d", tt.n, tt.d, got, tt.want)
		}
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(0, 0, 3, 4); got != 3 {
		t.Errorf("Coalesce = %d, want 3", got)
	}
	if got := Coalesce("", ""); got != "" {
		t.Errorf("Coalesce = %q, want empty", got)
	}
}
