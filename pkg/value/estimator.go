package value

// Estimator is the read side both variants share: per-action value
// predictions for an encoded state. Table keys states by string, Network
// by feature vector; their learning surfaces differ and stay on the
// concrete types.
type Estimator[S any] interface {
	Predict(s S) []float64
	Actions() int
}

var (
	_ Estimator[string]    = (*Table)(nil)
	_ Estimator[[]float64] = (*Network)(nil)
)
