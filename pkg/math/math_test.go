package math

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
)

func near(a, b [3]float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > 1e-4 {
			return false
		}
	}
	return true
}

func TestTransformPoint(t *testing.T) {
	quarterZ := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	tests := []struct {
		name string
		m    Mat4
		p    [3]float32
		want [3]float32
	}{
		{"identity", Identity(), [3]float32{1, 2, 3}, [3]float32{1, 2, 3}},
		{"translate", Translate(10, 20, 30), [3]float32{1, 2, 3}, [3]float32{11, 22, 33}},
		{"scale", Scale(2, 3, 4), [3]float32{1, 1, 1}, [3]float32{2, 3, 4}},
		{"rotate", quarterZ.ToMat4(), [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		// Unnormalized quaternions are normalized first
		{"rotate unnormalized", Quat{quarterZ.X * 3, quarterZ.Y * 3, quarterZ.Z * 3, quarterZ.W * 3}.ToMat4(), [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{"trs", FromTRS([3]float32{0, 0, 5}, quarterZ, [3]float32{2, 2, 2}), [3]float32{1, 0, 0}, [3]float32{0, 2, 5}},
		{"projective", Mat4{0: 1, 5: 1, 10: 1, 15: 2}, [3]float32{2, 4, 6}, [3]float32{1, 2, 3}},
		{"mat3", FromMat3x3([9]float32{0, 1, 0, -1, 0, 0, 0, 0, 1}), [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TransformPoint(tt.p); !near(got, tt.want) {
				t.Errorf("TransformPoint(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestMulOrder(t *testing.T) {
	// Translate then scale: the scale applies to the point first
	m := Translate(1, 0, 0).Mul(Scale(2, 2, 2))
	if got := m.TransformPoint([3]float32{1, 1, 1}); got != [3]float32{3, 2, 2} {
		t.Errorf("T*S = %v, want [3 2 2]", got)
	}
	if got := Translate(1, 2, 3).Mul(Identity()); got != Translate(1, 2, 3) {
		t.Errorf("M*I = %v", got)
	}
}

func TestQuat(t *testing.T) {
	if q := (Quat{}).Normalize(); q != QuatIdentity() {
		t.Errorf("zero Normalize() = %v, want identity", q)
	}
	q := Quat{1, 2, 3, 4}.Normalize()
	if l := math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W); math32.Abs(l-1) > 1e-4 {
		t.Errorf("Normalize() length = %v", l)
	}
	if got := QuatIdentity().ToMat4(); got != Identity() {
		t.Errorf("identity ToMat4() = %v", got)
	}
	if got := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2).Array(); math32.Abs(got[1]-math.Sqrt2/2) > 1e-4 || math32.Abs(got[3]-math.Sqrt2/2) > 1e-4 {
		t.Errorf("QuatFromAxisAngle(Y, 90°) = %v", got)
	}
}

func TestVec3(t *testing.T) {
	a := V3([3]float32{1, 2, 3})
	b := Vec3{4, 5, 6}
	if got := a.Add(b); got != (Vec3{5, 7, 9}) {
		t.Errorf("Add = %v", got)
	}
	if got := b.Sub(a).Array(); got != [3]float32{3, 3, 3} {
		t.Errorf("Sub = %v", got)
	}
	if got := (Vec3{X: 1}).Cross(Vec3{Y: 1}); got != (Vec3{Z: 1}) {
		t.Errorf("Cross = %v", got)
	}

	tests := []struct {
		name string
		v    Vec3
		want float32
	}{
		{"axis", Vec3{0, 5, 0}, 1},
		{"diagonal", Vec3{3, 4, 12}, 1},
		{"zero", Vec3{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if l := tt.v.Normalize().Length(); math32.Abs(l-tt.want) > 1e-3 {
				t.Errorf("Normalize().Length() = %v, want %v", l, tt.want)
			}
		})
	}
}
