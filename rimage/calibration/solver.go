package calibration

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcal/logging"
	"go.viam.com/camcal/rimage/transform"
)

// parameter layout: fx, fy, cx, cy, k1, k2, p1, p2, k3, then rvec and tvec for each view.
const (
	intrinsicCount = 9
	poseCount      = 6

	paramP1 = 6
	paramP2 = 7
	paramK3 = 8

	maxDampingAttempts = 12
	initialDamping     = 1e-3
)

// SolverConfig bounds and shapes the nonlinear refinement.
type SolverConfig struct {
	MaxIterations int `json:"max_iterations"`
	// Tolerance stops the refinement when the relative drop in cost of an accepted step is below it.
	Tolerance float64 `json:"tolerance"`
	// FixK3 keeps k3 at zero.
	FixK3 bool `json:"fix_k3"`
	// ZeroTangent keeps p1 and p2 at zero.
	ZeroTangent bool `json:"zero_tangent"`
}

// DefaultSolverConfig refines all nine intrinsic parameters.
var DefaultSolverConfig = SolverConfig{MaxIterations: 100, Tolerance: 1e-12}

// Result is a solved calibration.
type Result struct {
	Model *transform.PinholeCameraModel
	// Poses holds the board pose of each observation, in input order.
	Poses []transform.Pose
	// MeanError is the mean over views of each view's mean reprojection distance, in pixels.
	MeanError float64
	// RMSError is the root mean square reprojection distance over all points.
	RMSError        float64
	ViewErrors      []float64
	MedianViewError float64
	MaxViewError    float64
	Iterations      int
	Converged       bool
	// ClosedFormInit is false when the generic fallback camera seeded the refinement.
	ClosedFormInit bool
}

// CameraMatrix returns the 3x3 camera matrix of the solved model.
func (r *Result) CameraMatrix() *mat.Dense {
	return r.Model.GetCameraMatrix()
}

// DistortionCoefficients returns (k1, k2, p1, p2, k3).
func (r *Result) DistortionCoefficients() []float64 {
	if r.Model.Distortion == nil {
		return make([]float64, transform.BrownConradyParameterCount)
	}
	return r.Model.Distortion.Parameters()
}

// Solve estimates the intrinsics and lens distortion of the camera that produced observations,
// all taken at imageSize. The estimate is seeded with Zhang's closed form and refined with
// Levenberg-Marquardt over every parameter jointly.
func Solve(observations []Observation, imageSize image.Point, cfg SolverConfig, logger logging.Logger) (*Result, error) {
	if err := validateObservations(observations); err != nil {
		return nil, err
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Errorf("image size must be positive, got %v", imageSize)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultSolverConfig.MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultSolverConfig.Tolerance
	}

	intrinsics, poses, closedForm, err := initialEstimate(observations, imageSize)
	if err != nil {
		return nil, err
	}
	if !closedForm {
		logger.Warnw("closed form initialization failed, starting from a generic camera", "views", len(observations))
	}
	logger.Debugw("initial estimate", "fx", intrinsics.Fx, "fy", intrinsics.Fy, "cx", intrinsics.Ppx, "cy", intrinsics.Ppy)

	prob := newProblem(observations, intrinsics, poses, cfg)
	x, iterations, converged := prob.levenbergMarquardt(prob.initial(), cfg, logger)
	full := prob.expand(x)

	model, poses, err := unpack(full, imageSize, len(observations))
	if err != nil {
		return nil, errors.Wrap(err, "refinement produced an invalid camera")
	}
	res := &Result{
		Model:          model,
		Poses:          poses,
		Iterations:     iterations,
		Converged:      converged,
		ClosedFormInit: closedForm,
	}
	if err := res.computeErrors(observations); err != nil {
		return nil, err
	}
	logger.Infow("calibration solved",
		"views", len(observations),
		"iterations", iterations,
		"converged", converged,
		"mean_error_px", res.MeanError,
		"rms_error_px", res.RMSError)
	return res, nil
}

func (r *Result) computeErrors(observations []Observation) error {
	r.ViewErrors = make([]float64, len(observations))
	var sumSq float64
	var count int
	for i, obs := range observations {
		projected := r.Model.ProjectPoints(r.Poses[i], obs.ObjectPoints)
		var sum float64
		for j, p := range projected {
			d := p.Sub(obs.ImagePoints[j]).Norm()
			sum += d
			sumSq += d * d
		}
		count += len(projected)
		r.ViewErrors[i] = sum / float64(len(projected))
	}
	r.MeanError = stat(stats.Mean, r.ViewErrors)
	r.RMSError = math.Sqrt(sumSq / float64(count))
	r.MedianViewError = stat(stats.Median, r.ViewErrors)
	r.MaxViewError = stat(stats.Max, r.ViewErrors)
	for _, v := range []float64{r.MeanError, r.RMSError} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("reprojection error is not finite")
		}
	}
	return nil
}

func stat(f func(stats.Float64Data) (float64, error), data []float64) float64 {
	v, err := f(data)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ReprojectionError is the mean pixel distance between the observed image points and the object
// points projected through model at pose.
func ReprojectionError(model *transform.PinholeCameraModel, obs Observation, pose transform.Pose) (float64, error) {
	if err := model.CheckValid(); err != nil {
		return 0, err
	}
	if len(obs.ObjectPoints) != len(obs.ImagePoints) || len(obs.ObjectPoints) == 0 {
		return 0, errors.Wrapf(ErrInconsistentObservation, "%d object points and %d image points",
			len(obs.ObjectPoints), len(obs.ImagePoints))
	}
	projected := model.ProjectPoints(pose, obs.ObjectPoints)
	var sum float64
	for i, p := range projected {
		sum += p.Sub(obs.ImagePoints[i]).Norm()
	}
	return sum / float64(len(projected)), nil
}

// problem is the calibration least squares problem over the free subset of the parameters.
type problem struct {
	observations []Observation
	start        []float64
	free         []int
	residualLen  int
}

func newProblem(observations []Observation, intrinsics *transform.PinholeCameraIntrinsics, poses []transform.Pose, cfg SolverConfig) *problem {
	start := make([]float64, intrinsicCount+poseCount*len(poses))
	start[0], start[1], start[2], start[3] = intrinsics.Fx, intrinsics.Fy, intrinsics.Ppx, intrinsics.Ppy
	for i, pose := range poses {
		off := intrinsicCount + poseCount*i
		copy(start[off:], []float64{
			pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z,
			pose.Translation.X, pose.Translation.Y, pose.Translation.Z,
		})
	}

	fixed := map[int]bool{}
	if cfg.FixK3 {
		fixed[paramK3] = true
	}
	if cfg.ZeroTangent {
		fixed[paramP1] = true
		fixed[paramP2] = true
	}
	free := make([]int, 0, len(start))
	for i := range start {
		if !fixed[i] {
			free = append(free, i)
		}
	}

	residualLen := 0
	for _, obs := range observations {
		residualLen += 2 * len(obs.ObjectPoints)
	}
	return &problem{observations: observations, start: start, free: free, residualLen: residualLen}
}

func (p *problem) initial() []float64 {
	x := make([]float64, len(p.free))
	for i, idx := range p.free {
		x[i] = p.start[idx]
	}
	return x
}

func (p *problem) expand(x []float64) []float64 {
	full := make([]float64, len(p.start))
	copy(full, p.start)
	for i, idx := range p.free {
		full[idx] = x[i]
	}
	return full
}

func poseAt(full []float64, view int) transform.Pose {
	off := intrinsicCount + poseCount*view
	return transform.Pose{
		Rotation:    r3.Vector{X: full[off], Y: full[off+1], Z: full[off+2]},
		Translation: r3.Vector{X: full[off+3], Y: full[off+4], Z: full[off+5]},
	}
}

func modelAt(full []float64) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Fx: full[0], Fy: full[1], Ppx: full[2], Ppy: full[3],
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     full[4],
			RadialK2:     full[5],
			TangentialP1: full[6],
			TangentialP2: full[7],
			RadialK3:     full[8],
		},
	}
}

// residuals writes projected minus observed pixel coordinates into dst. It is safe for concurrent
// use.
func (p *problem) residuals(dst, x []float64) {
	full := p.expand(x)
	model := modelAt(full)
	k := 0
	for v, obs := range p.observations {
		projected := model.ProjectPoints(poseAt(full, v), obs.ObjectPoints)
		for i, pt := range projected {
			dst[k] = pt.X - obs.ImagePoints[i].X
			dst[k+1] = pt.Y - obs.ImagePoints[i].Y
			k += 2
		}
	}
}

func (p *problem) cost(r []float64) float64 {
	c := floats.Dot(r, r) / 2
	if math.IsNaN(c) {
		return math.Inf(1)
	}
	return c
}

// levenbergMarquardt minimizes the squared residuals starting at x. It returns the solution, the
// number of accepted iterations and whether a stopping criterion other than the iteration cap
// was met.
func (p *problem) levenbergMarquardt(x []float64, cfg SolverConfig, logger logging.Logger) ([]float64, int, bool) {
	m, n := p.residualLen, len(x)
	r := make([]float64, m)
	p.residuals(r, x)
	cost := p.cost(r)

	jac := mat.NewDense(m, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Concurrent: true}
	candidate := make([]float64, n)
	candidateR := make([]float64, m)
	lambda := initialDamping

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		fd.Jacobian(jac, p.residuals, x, settings)
		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		accepted := false
		var newCost float64
		for attempt := 0; attempt < maxDampingAttempts; attempt++ {
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range candidate {
				candidate[i] = x[i] - step.AtVec(i)
			}
			p.residuals(candidateR, candidate)
			newCost = p.cost(candidateR)
			if newCost < cost {
				accepted = true
				lambda = math.Max(lambda/10, 1e-15)
				break
			}
			lambda *= 10
		}
		if !accepted {
			logger.Debugw("no descent step found", "iteration", iter, "cost", cost)
			return x, iter, true
		}

		improvement := (cost - newCost) / math.Max(cost, math.SmallestNonzeroFloat64)
		copy(x, candidate)
		copy(r, candidateR)
		cost = newCost
		logger.Debugw("lm step", "iteration", iter+1, "cost", cost, "damping", lambda)
		if improvement < cfg.Tolerance {
			return x, iter + 1, true
		}
	}
	return x, cfg.MaxIterations, false
}

func unpack(full []float64, imageSize image.Point, views int) (*transform.PinholeCameraModel, []transform.Pose, error) {
	model := modelAt(full)
	model.Width, model.Height = imageSize.X, imageSize.Y
	if err := model.CheckValid(); err != nil {
		return nil, nil, err
	}
	poses := make([]transform.Pose, views)
	for i := range poses {
		poses[i] = poseAt(full, i)
	}
	return model, poses, nil
}
