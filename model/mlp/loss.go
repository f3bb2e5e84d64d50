package mlp

import (
	"gonum.org/v1/gonum/mat"
	"math"
)

/*
Loss is a training objective chosen by the output unit
*/
type Loss int

const (
	SquaredError Loss = iota
	BinaryCrossEntropy
	SparseCategoricalCrossEntropy
)

func (l Loss) String() string {
	switch l {
	case BinaryCrossEntropy:
		return "binaryCrossEntropy"
	case SparseCategoricalCrossEntropy:
		return "sparseCategoricalCrossEntropy"
	}
	return "squaredError"
}

func (o Output) Loss() Loss {
	switch o {
	case Sigmoid:
		return BinaryCrossEntropy
	case Softmax:
		return SparseCategoricalCrossEntropy
	}
	return SquaredError
}

const clip = 1e-7

func (n *Network) valid(y float64) bool {
	if math.IsNaN(y) {
		return false
	}
	switch n.Output {
	case Sigmoid:
		return y == 0 || y == 1
	case Softmax:
		return y >= 0 && int(y) < n.Units
	}
	return true
}

/*
objective returns mean loss over rows having valid label and gradient of the loss by logits,
rows without valid label do not contribute
*/
func (n *Network) objective(logits *mat.Dense, y []float64) (float64, *mat.Dense) {
	rows, cols := logits.Dims()
	d := mat.NewDense(rows, cols, nil)
	m := 0
	for i := 0; i < rows; i++ {
		if n.valid(y[i]) {
			m++
		}
	}
	if m == 0 {
		return 0, d
	}
	scale := 1 / float64(m)
	lr := logits.RawMatrix()
	dr := d.RawMatrix()
	var loss float64
	for i := 0; i < rows; i++ {
		if !n.valid(y[i]) {
			continue
		}
		z := lr.Data[i*lr.Stride : i*lr.Stride+cols]
		g := dr.Data[i*dr.Stride : i*dr.Stride+cols]
		switch n.Output {
		case Linear:
			e := z[0] - y[i]
			loss += e * e
			g[0] = 2 * e * scale
		case Sigmoid:
			p := sigmoid(z[0])
			q := math.Min(math.Max(p, clip), 1-clip)
			loss -= y[i]*math.Log(q) + (1-y[i])*math.Log(1-q)
			g[0] = (p - y[i]) * scale
		case Softmax:
			copy(g, z)
			softmax(g)
			c := int(y[i])
			loss -= math.Log(math.Max(g[c], clip))
			g[c] -= 1
			for j := range g {
				g[j] *= scale
			}
		}
	}
	return loss*scale + n.penalty(), d
}

func (n *Network) penalty() float64 {
	if n.L1 <= 0 || len(n.layers) == 0 {
		return 0
	}
	var s float64
	for _, x := range n.layers[0].W.RawMatrix().Data {
		s += math.Abs(x)
	}
	return n.L1 * s
}

/*
Loss evaluates the training objective on data without dropout
*/
func (n *Network) Loss(data Data) float64 {
	if data.Len() == 0 || n.Released() {
		return math.NaN()
	}
	p := n.forward(data.X, nil)
	l, _ := n.objective(p.logits, data.Y)
	return l
}
