package transform

const (
	// InverseMaxIterations caps the Newton-Raphson loop in Invert.
	InverseMaxIterations = 20
	// InverseTolerance is the residual, in normalized units, below which Invert stops.
	InverseTolerance = 1e-10
)

// Invert applies the inverse of the Brown-Conrady distortion. Given a distorted normalized point,
// it searches for the undistorted point whose forward distortion lands on it using Newton-Raphson
// with the analytic Jacobian of Transform.
//
// The loop is capped at InverseMaxIterations. When the cap is hit, or the Jacobian becomes
// singular, the estimate with the smallest residual seen is returned with converged=false.
func (bc *BrownConrady) Invert(xd, yd float64) (float64, float64, bool) {
	if bc.IsZero() {
		return xd, yd, true
	}

	// Start with the distorted point as initial guess
	xu, yu := xd, yd
	bestX, bestY := xu, yu
	bestErr := -1.0

	for i := 0; i <= InverseMaxIterations; i++ {
		r2 := xu*xu + yu*yu
		r4 := r2 * r2

		xdEst, ydEst := bc.Transform(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd
		sqErr := errX*errX + errY*errY

		if bestErr < 0 || sqErr < bestErr {
			bestX, bestY, bestErr = xu, yu, sqErr
		}
		if sqErr < InverseTolerance*InverseTolerance {
			return xu, yu, true
		}
		if i == InverseMaxIterations {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		radDist := 1.0 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
		dRad := bc.RadialK1 + 2.0*bc.RadialK2*r2 + 3.0*bc.RadialK3*r4
		dRadDistDxu := 2.0 * xu * dRad
		dRadDistDyu := 2.0 * yu * dRad

		dxdDxu := radDist + xu*dRadDistDxu + 2.0*bc.TangentialP1*yu + 6.0*bc.TangentialP2*xu
		dxdDyu := xu*dRadDistDyu + 2.0*bc.TangentialP1*xu + 2.0*bc.TangentialP2*yu
		dydDxu := yu*dRadDistDxu + 2.0*bc.TangentialP2*yu + 2.0*bc.TangentialP1*xu
		dydDyu := radDist + yu*dRadDistDyu + 2.0*bc.TangentialP2*xu + 6.0*bc.TangentialP1*yu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}

		// [xu, yu] -= J^-1 * [errX, errY]
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return bestX, bestY, false
}
