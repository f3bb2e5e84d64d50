package mlp

import (
	"go-ml.dev/pkg/zorros"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"math"
	"math/rand"
)

type dense struct {
	W  *mat.Dense // in x out
	B  []float64
	gW *mat.Dense
	gB []float64
}

func newDense(in, out int, rng *rand.Rand) *dense {
	limit := math.Sqrt(6 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * limit
	}
	return &dense{W: mat.NewDense(in, out, w), B: make([]float64, out)}
}

func (d *dense) forward(x mat.Matrix) *mat.Dense {
	var z mat.Dense
	z.Mul(x, d.W)
	raw := z.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		floats.Add(raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols], d.B)
	}
	return &z
}

/*
Network is a trained or being trained model.
It owns its weights until Release is called.
*/
type Network struct {
	Architecture
	layers []*dense
	out    *dense
}

/*
Release frees the network weights, the network is not usable after that
*/
func (n *Network) Release() {
	n.layers = nil
	n.out = nil
}

/*
Released reports the weights were freed
*/
func (n *Network) Released() bool {
	return n.out == nil
}

// pass keeps intermediate values of the forward pass needed by backpropagation
type pass struct {
	inputs   []*mat.Dense // input of every hidden layer after dropout
	masks    []*mat.Dense // inverted dropout masks of inputs, nil if there is no dropout
	z, h     []*mat.Dense
	head     *mat.Dense // concatenation after dropout
	headMask *mat.Dense
	logits   *mat.Dense
}

// forward runs the network, rng is nil on inference and dropout is off
func (n *Network) forward(x *mat.Dense, rng *rand.Rand) *pass {
	p := &pass{}
	in, mask := x, (*mat.Dense)(nil)
	for i, l := range n.layers {
		if i > 0 {
			in, mask = dropout(p.h[i-1], n.Dropout, rng)
		}
		z := l.forward(in)
		h := mat.DenseCopyOf(z)
		h.Apply(func(_, _ int, v float64) float64 { return gelu(v) }, h)
		p.inputs = append(p.inputs, in)
		p.masks = append(p.masks, mask)
		p.z = append(p.z, z)
		p.h = append(p.h, h)
	}
	concat := concatenate(append([]*mat.Dense{x}, p.h...))
	p.head, p.headMask = dropout(concat, n.Dropout, rng)
	p.logits = n.out.forward(p.head)
	return p
}

// backward accumulates gradients of weights given gradient of loss by logits
func (n *Network) backward(p *pass, d *mat.Dense) {
	rows, _ := d.Dims()
	n.out.gW.Mul(p.head.T(), d)
	colSum(n.out.gB, d)
	var dh mat.Dense
	dh.Mul(d, n.out.W.T())
	if p.headMask != nil {
		dh.MulElem(&dh, p.headMask)
	}
	upstream := make([]*mat.Dense, len(n.layers))
	off := n.Inputs
	for i, w := range n.Hidden {
		upstream[i] = mat.DenseCopyOf(dh.Slice(0, rows, off, off+w))
		off += w
	}
	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		dz := upstream[i]
		mulGeluGrad(dz, p.z[i])
		l.gW.Mul(p.inputs[i].T(), dz)
		colSum(l.gB, dz)
		if i > 0 {
			var dx mat.Dense
			dx.Mul(dz, l.W.T())
			if p.masks[i] != nil {
				dx.MulElem(&dx, p.masks[i])
			}
			upstream[i-1].Add(upstream[i-1], &dx)
		}
	}
	if n.L1 > 0 {
		w := n.layers[0].W.RawMatrix().Data
		g := n.layers[0].gW.RawMatrix().Data
		for i, x := range w {
			g[i] += n.L1 * sign(x)
		}
	}
}

/*
Predict returns outputs for every row of x: a value for regression,
the positive class probability for binary and class probabilities for multiclass targets
*/
func (n *Network) Predict(x mat.Matrix) (*mat.Dense, error) {
	if n.Released() {
		return nil, zorros.Errorf("network is released")
	}
	if _, c := x.Dims(); c != n.Inputs {
		return nil, zorros.Errorf("network expects %d features but got %d", n.Inputs, c)
	}
	xd, ok := x.(*mat.Dense)
	if !ok {
		xd = mat.DenseCopyOf(x)
	}
	p := n.forward(xd, nil)
	return n.activate(p.logits), nil
}

func (n *Network) activate(logits *mat.Dense) *mat.Dense {
	switch n.Output {
	case Sigmoid:
		logits.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) }, logits)
	case Softmax:
		raw := logits.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			softmax(raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols])
		}
	}
	return logits
}

func (n *Network) dense() []*dense {
	r := make([]*dense, 0, len(n.layers)+1)
	return append(append(r, n.layers...), n.out)
}

func (n *Network) allocGrad() {
	for _, l := range n.dense() {
		r, c := l.W.Dims()
		l.gW = mat.NewDense(r, c, nil)
		l.gB = make([]float64, c)
	}
}

func (n *Network) dropGrad() {
	if n.Released() {
		return
	}
	for _, l := range n.dense() {
		l.gW, l.gB = nil, nil
	}
}

type param struct {
	value, grad []float64
}

func (n *Network) params() []param {
	var r []param
	for _, l := range n.dense() {
		r = append(r,
			param{l.W.RawMatrix().Data, l.gW.RawMatrix().Data},
			param{l.B, l.gB})
	}
	return r
}

func dropout(a *mat.Dense, rate float64, rng *rand.Rand) (*mat.Dense, *mat.Dense) {
	if rng == nil || rate <= 0 {
		return a, nil
	}
	r, c := a.Dims()
	keep := 1 / (1 - rate)
	m := make([]float64, r*c)
	for i := range m {
		if rng.Float64() >= rate {
			m[i] = keep
		}
	}
	mask := mat.NewDense(r, c, m)
	var out mat.Dense
	out.MulElem(a, mask)
	return &out, mask
}

func concatenate(parts []*mat.Dense) *mat.Dense {
	rows, width := parts[0].Dims()
	for _, p := range parts[1:] {
		_, c := p.Dims()
		width += c
	}
	r := mat.NewDense(rows, width, nil)
	off := 0
	for _, p := range parts {
		_, c := p.Dims()
		r.Slice(0, rows, off, off+c).(*mat.Dense).Copy(p)
		off += c
	}
	return r
}

func colSum(dst []float64, a *mat.Dense) {
	for j := range dst {
		dst[j] = 0
	}
	raw := a.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		floats.Add(dst, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
	}
}

const geluK = 0.7978845608028654 // sqrt(2/pi)

// gelu is the tanh approximation of the Gaussian error linear unit
func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(geluK*(x+0.044715*x*x*x)))
}

func geluGrad(x float64) float64 {
	t := math.Tanh(geluK * (x + 0.044715*x*x*x))
	return 0.5*(1+t) + 0.5*x*(1-t*t)*geluK*(1+3*0.044715*x*x)
}

func mulGeluGrad(d, z *mat.Dense) {
	dr, zr := d.RawMatrix(), z.RawMatrix()
	for i := 0; i < dr.Rows; i++ {
		a := dr.Data[i*dr.Stride : i*dr.Stride+dr.Cols]
		b := zr.Data[i*zr.Stride : i*zr.Stride+zr.Cols]
		for j, v := range b {
			a[j] *= geluGrad(v)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(a []float64) {
	m := floats.Max(a)
	var s float64
	for i, v := range a {
		a[i] = math.Exp(v - m)
		s += a[i]
	}
	floats.Scale(1/s, a)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
