package value

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// NetworkConfig describes the Q-network shape and optimizer step size.
type NetworkConfig struct {
	Inputs       int
	Hidden       []int
	Outputs      int
	LearningRate float64
	Seed         int64
}

type layer struct {
	w *mat.Dense    // out x in
	b *mat.VecDense // out
}

type moments struct {
	mw *mat.Dense
	vw *mat.Dense
	mb *mat.VecDense
	vb *mat.VecDense
}

// Network is a feed-forward action-value approximator: ReLU hidden layers,
// identity output, trained by Adam on mean-squared error. It keeps two
// parameter sets: online weights updated on every TrainBatch, and a target
// copy overwritten from the online weights only by SyncTarget, so learning
// targets lag behind the weights being trained. Not safe for concurrent
// use.
type Network struct {
	cfg    NetworkConfig
	sizes  []int // inputs, hidden..., outputs
	online []layer
	target []layer
	adam   []moments
	step   int
}

// NewNetwork builds a network with Xavier-initialized online weights and
// the target immediately synced to them. Hidden defaults to 128,128,64 and
// LearningRate to 0.001 when unset.
func NewNetwork(cfg NetworkConfig) *Network {
	if len(cfg.Hidden) == 0 {
		cfg.Hidden = []int{128, 128, 64}
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	sizes := make([]int, 0, len(cfg.Hidden)+2)
	sizes = append(sizes, cfg.Inputs)
	sizes = append(sizes, cfg.Hidden...)
	sizes = append(sizes, cfg.Outputs)

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &Network{cfg: cfg, sizes: sizes}
	for i := 1; i < len(sizes); i++ {
		in, out := sizes[i-1], sizes[i]
		std := math.Sqrt(2.0 / float64(in+out))
		data := make([]float64, out*in)
		for j := range data {
			data[j] = rng.NormFloat64() * std
		}
		n.online = append(n.online, layer{
			w: mat.NewDense(out, in, data),
			b: mat.NewVecDense(out, nil),
		})
		n.target = append(n.target, layer{
			w: mat.NewDense(out, in, nil),
			b: mat.NewVecDense(out, nil),
		})
		n.adam = append(n.adam, moments{
			mw: mat.NewDense(out, in, nil),
			vw: mat.NewDense(out, in, nil),
			mb: mat.NewVecDense(out, nil),
			vb: mat.NewVecDense(out, nil),
		})
	}
	n.SyncTarget()
	return n
}

// Inputs is the expected feature vector length.
func (n *Network) Inputs() int { return n.cfg.Inputs }

// Actions is the action count, the output layer width.
func (n *Network) Actions() int { return n.cfg.Outputs }

// Predict evaluates the online network. The input must be Inputs long.
func (n *Network) Predict(x []float64) []float64 {
	return forward(n.online, x)
}

// PredictTarget evaluates the lagged target network.
func (n *Network) PredictTarget(x []float64) []float64 {
	return forward(n.target, x)
}

func forward(params []layer, x []float64) []float64 {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for i, l := range params {
		z := mat.NewVecDense(l.b.Len(), nil)
		z.MulVec(l.w, a)
		z.AddVec(z, l.b)
		if i < len(params)-1 {
			relu(z.RawVector().Data)
		}
		a = z
	}
	return a.RawVector().Data
}

func relu(data []float64) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// TrainBatch performs one Adam step on the online weights, minimizing
// mean-squared error between online predictions for states and the given
// per-action target vectors. It returns the pre-update batch loss. The
// target network is untouched.
func (n *Network) TrainBatch(states, targets [][]float64) (float64, error) {
	if len(states) == 0 || len(states) != len(targets) {
		return 0, fmt.Errorf("value: batch of %d states and %d targets", len(states), len(targets))
	}

	depth := len(n.online)
	gw := make([]*mat.Dense, depth)
	gb := make([]*mat.VecDense, depth)
	for i, l := range n.online {
		r, c := l.w.Dims()
		gw[i] = mat.NewDense(r, c, nil)
		gb[i] = mat.NewVecDense(l.b.Len(), nil)
	}

	outs := n.sizes[len(n.sizes)-1]
	scale := 2.0 / float64(len(states)*outs)
	var loss float64

	for k, x := range states {
		if len(x) != n.cfg.Inputs || len(targets[k]) != outs {
			return 0, fmt.Errorf("value: sample %d has %d features and %d targets, want %d and %d",
				k, len(x), len(targets[k]), n.cfg.Inputs, outs)
		}

		acts := make([]*mat.VecDense, depth+1)
		zs := make([]*mat.VecDense, depth)
		acts[0] = mat.NewVecDense(len(x), append([]float64(nil), x...))
		for i, l := range n.online {
			z := mat.NewVecDense(l.b.Len(), nil)
			z.MulVec(l.w, acts[i])
			z.AddVec(z, l.b)
			zs[i] = z
			if i < depth-1 {
				a := mat.NewVecDense(z.Len(), append([]float64(nil), z.RawVector().Data...))
				relu(a.RawVector().Data)
				acts[i+1] = a
			} else {
				acts[i+1] = z
			}
		}

		delta := mat.NewVecDense(outs, nil)
		for j := 0; j < outs; j++ {
			d := acts[depth].AtVec(j) - targets[k][j]
			loss += d * d
			delta.SetVec(j, scale*d)
		}

		for i := depth - 1; i >= 0; i-- {
			var outer mat.Dense
			outer.Outer(1, delta, acts[i])
			gw[i].Add(gw[i], &outer)
			gb[i].AddVec(gb[i], delta)
			if i > 0 {
				prev := mat.NewVecDense(acts[i].Len(), nil)
				prev.MulVec(n.online[i].w.T(), delta)
				zd := zs[i-1].RawVector().Data
				pd := prev.RawVector().Data
				for j := range pd {
					if zd[j] <= 0 {
						pd[j] = 0
					}
				}
				delta = prev
			}
		}
	}

	n.step++
	for i := range n.online {
		n.adamStep(i, gw[i], gb[i])
	}
	return loss / float64(len(states)*outs), nil
}

func (n *Network) adamStep(i int, gw *mat.Dense, gb *mat.VecDense) {
	c1 := 1 - math.Pow(adamBeta1, float64(n.step))
	c2 := 1 - math.Pow(adamBeta2, float64(n.step))
	update := func(w, g, m, v []float64) {
		for j := range w {
			m[j] = adamBeta1*m[j] + (1-adamBeta1)*g[j]
			v[j] = adamBeta2*v[j] + (1-adamBeta2)*g[j]*g[j]
			w[j] -= n.cfg.LearningRate * (m[j] / c1) / (math.Sqrt(v[j]/c2) + adamEps)
		}
	}
	update(n.online[i].w.RawMatrix().Data, gw.RawMatrix().Data,
		n.adam[i].mw.RawMatrix().Data, n.adam[i].vw.RawMatrix().Data)
	update(n.online[i].b.RawVector().Data, gb.RawVector().Data,
		n.adam[i].mb.RawVector().Data, n.adam[i].vb.RawVector().Data)
}

// SyncTarget hard-copies the online parameters into the target parameters.
func (n *Network) SyncTarget() {
	for i := range n.online {
		n.target[i].w.Copy(n.online[i].w)
		n.target[i].b.CopyVec(n.online[i].b)
	}
}

type networkSnapshot struct {
	Sizes   []int
	Weights [][]float64
	Biases  [][]float64
}

// Save writes the online parameters to w. Predictions after a Save/Load
// round trip are bit-identical.
func (n *Network) Save(w io.Writer) error {
	snap := networkSnapshot{Sizes: n.sizes}
	for _, l := range n.online {
		snap.Weights = append(snap.Weights, append([]float64(nil), l.w.RawMatrix().Data...))
		snap.Biases = append(snap.Biases, append([]float64(nil), l.b.RawVector().Data...))
	}
	return gob.NewEncoder(w).Encode(snap)
}

// Load restores online parameters written by Save into a network of the
// same shape, re-syncs the target, and clears the optimizer state.
func (n *Network) Load(r io.Reader) error {
	var snap networkSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("value: decoding network: %w", err)
	}
	if len(snap.Sizes) != len(n.sizes) {
		return fmt.Errorf("value: network has %d layers, want %d", len(snap.Sizes)-1, len(n.sizes)-1)
	}
	for i, s := range snap.Sizes {
		if s != n.sizes[i] {
			return fmt.Errorf("value: layer size %d is %d, want %d", i, s, n.sizes[i])
		}
	}
	if len(snap.Weights) != len(n.online) || len(snap.Biases) != len(n.online) {
		return fmt.Errorf("value: snapshot holds %d weight sets, want %d", len(snap.Weights), len(n.online))
	}
	for i, l := range n.online {
		copy(l.w.RawMatrix().Data, snap.Weights[i])
		copy(l.b.RawVector().Data, snap.Biases[i])
		n.adam[i].mw.Zero()
		n.adam[i].vw.Zero()
		n.adam[i].mb.Zero()
		n.adam[i].vb.Zero()
	}
	n.step = 0
	n.SyncTarget()
	return nil
}
