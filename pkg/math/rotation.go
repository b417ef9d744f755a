package math

// AngleUnit converts the integer angles stored in block files to radians.
// A full turn is 2048 units.
const AngleUnit = 3.14159 / 1024.0

var (
	axisX = Vec3{1, 0, 0}
	axisY = Vec3{0, 1, 0}
	axisZ = Vec3{0, 0, 1}
)

// BuildRotation converts a file rotation triple (X, Y, Z angle units) into an
// orientation. Yaw is applied first, then pitch, then roll. The Y angle is
// negated because the file's yaw runs clockwise.
func BuildRotation(rot Vec3) Quat {
	return BuildRotationScaled(rot, 1)
}

// BuildRotationScaled is BuildRotation with every angle multiplied by t.
// Movers use it to rebuild the in-between rotation on each tick, so the
// animation is linear in angle rather than a slerp between two orientations.
func BuildRotationScaled(rot Vec3, t float32) Quat {
	y := QuatFromAxisAngle(axisY, -rot.Y*t*AngleUnit)
	x := QuatFromAxisAngle(axisX, rot.X*t*AngleUnit)
	z := QuatFromAxisAngle(axisZ, rot.Z*t*AngleUnit)
	return z.Mul(x).Mul(y)
}
