//go:build !withcv

package chessboard

// DefaultStrategies returns the pure-Go ladder.
func DefaultStrategies() []Strategy {
	return PureGoStrategies()
}

// FastCheckStrategies returns only the first pure-Go rung so images without a board are rejected
// after a single pass.
func FastCheckStrategies() []Strategy {
	return PureGoStrategies()[:1]
}
