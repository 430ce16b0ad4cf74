package diffdrive

// WheelGeometry describes the wheels of a differential drive base. Separation and radius are in
// meters; the multipliers correct for slip and manufacturing tolerance.
type WheelGeometry struct {
	Separation            float64
	Radius                float64
	SeparationMultiplier  float64
	LeftRadiusMultiplier  float64
	RightRadiusMultiplier float64
}

// EffectiveSeparation returns the calibrated wheel separation.
func (g WheelGeometry) EffectiveSeparation() float64 {
	return g.Separation * g.SeparationMultiplier
}

// LeftRadius returns the calibrated radius of the left wheels.
func (g WheelGeometry) LeftRadius() float64 {
	return g.Radius * g.LeftRadiusMultiplier
}

// RightRadius returns the calibrated radius of the right wheels.
func (g WheelGeometry) RightRadius() float64 {
	return g.Radius * g.RightRadiusMultiplier
}

// Inverse converts a body twist in m/s and rad/s to left and right wheel angular velocities in rad/s.
func (g WheelGeometry) Inverse(linear, angular float64) (left, right float64) {
	halfTrack := angular * g.EffectiveSeparation() / 2
	left = (linear - halfTrack) / g.LeftRadius()
	right = (linear + halfTrack) / g.RightRadius()
	return left, right
}

// Forward converts left and right wheel angular velocities in rad/s to a body twist.
func (g WheelGeometry) Forward(left, right float64) (linear, angular float64) {
	leftVel := left * g.LeftRadius()
	rightVel := right * g.RightRadius()
	linear = (leftVel + rightVel) / 2
	angular = (rightVel - leftVel) / g.EffectiveSeparation()
	return linear, angular
}
