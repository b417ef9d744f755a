package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	// 90 degrees around Y axis
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	expectedW := float32(math.Cos(math.Pi / 4))
	expectedY := float32(math.Sin(math.Pi / 4))

	if math.Abs(float64(q.W-expectedW)) > 0.001 {
		t.Errorf("QuatFromAxisAngle W: expected %v, got %v", expectedW, q.W)
	}
	if math.Abs(float64(q.Y-expectedY)) > 0.001 {
		t.Errorf("QuatFromAxisAngle Y: expected %v, got %v", expectedY, q.Y)
	}
}

func TestQuatMulIdentity(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 0, Z: 0}, 0.7)
	if got := QuatIdentity().Mul(q); got != q {
		t.Errorf("identity*q = %v, want %v", got, q)
	}
	if got := q.Mul(QuatIdentity()); got != q {
		t.Errorf("q*identity = %v, want %v", got, q)
	}
}

func TestQuatRotate(t *testing.T) {
	// 90 degrees around Z takes +X to +Y
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 0, Z: 1}, float32(math.Pi/2))
	got := q.Rotate(Vec3{X: 1})
	if !got.ApproxEqual(Vec3{Y: 1}, 0.0001) {
		t.Errorf("Rotate = %v, want (0, 1, 0)", got)
	}
}

func TestBuildRotation(t *testing.T) {
	tests := []struct {
		name string
		rot  Vec3
		in   Vec3
		want Vec3
	}{
		{"zero", Vec3{}, Vec3{X: 1}, Vec3{X: 1}},
		// 512 units is a quarter turn; file yaw is clockwise, so +Y turns +X towards +Z
		{"quarter yaw", Vec3{Y: 512}, Vec3{X: 1}, Vec3{Z: 1}},
		{"half roll", Vec3{Z: 1024}, Vec3{X: 1}, Vec3{X: -1}},
		{"quarter pitch", Vec3{X: 512}, Vec3{Y: 1}, Vec3{Z: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildRotation(tt.rot).Rotate(tt.in)
			if !got.ApproxEqual(tt.want, 0.001) {
				t.Errorf("BuildRotation(%v).Rotate(%v) = %v, want %v", tt.rot, tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildRotationScaledIsLinearInAngle(t *testing.T) {
	amount := Vec3{Y: 512}
	half := BuildRotationScaled(amount, 0.5)
	want := BuildRotation(Vec3{Y: 256})
	if !half.SameRotation(want, 1e-6) {
		t.Errorf("scaled(0.5) = %v, want %v", half, want)
	}

	if got := BuildRotationScaled(amount, 1); !got.SameRotation(BuildRotation(amount), 1e-6) {
		t.Errorf("scaled(1) = %v, want full rotation", got)
	}
}
