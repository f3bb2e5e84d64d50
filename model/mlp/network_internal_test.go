package mlp

import (
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
	"math"
	"math/rand"
	"testing"
)

func numericGrad(t *testing.T, a Architecture, y []float64) {
	rng := rand.New(rand.NewSource(3))
	x := mat.NewDense(5, a.Inputs, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return rng.NormFloat64() }, x)
	n := Build(a)
	n.allocGrad()
	p := n.forward(x, nil)
	_, d := n.objective(p.logits, y)
	n.backward(p, d)
	const h = 1e-6
	for _, q := range n.params() {
		for i := range q.value {
			v := q.value[i]
			q.value[i] = v + h
			lp, _ := n.objective(n.forward(x, nil).logits, y)
			q.value[i] = v - h
			lm, _ := n.objective(n.forward(x, nil).logits, y)
			q.value[i] = v
			g := (lp - lm) / (2 * h)
			assert.Assert(t, math.Abs(g-q.grad[i]) < 1e-5*math.Max(1, math.Abs(g)), "%v vs %v", g, q.grad[i])
		}
	}
}

func Test_GradientLinear(t *testing.T) {
	a := Architecture{Inputs: 3, Hidden: []int{8, 2}, L1: 0.01, Output: Linear, Units: 1, Seed: 1}
	numericGrad(t, a, []float64{1, -2, 0.5, 3, math.NaN()})
}

func Test_GradientSigmoid(t *testing.T) {
	a := Architecture{Inputs: 4, Hidden: []int{4}, Output: Sigmoid, Units: 1, Seed: 2}
	numericGrad(t, a, []float64{1, 0, 0, 1, 1})
}

func Test_GradientSoftmax(t *testing.T) {
	a := Architecture{Inputs: 2, Hidden: []int{8, 2}, Output: Softmax, Units: 3, Seed: 3}
	numericGrad(t, a, []float64{0, 1, 2, -1, 1})
}

func oneRow(inputs int) *mat.Dense {
	x := mat.NewDense(1, inputs, nil)
	for j := 0; j < inputs; j++ {
		x.Set(0, j, 0.3*float64(j+1)-0.5)
	}
	return x
}

func Test_BinaryCrossEntropyValue(t *testing.T) {
	n := Build(Architecture{Inputs: 3, Hidden: []int{4}, Output: Sigmoid, Units: 1, Seed: 5})
	x := oneRow(3)
	z := n.forward(x, nil).logits.At(0, 0)
	p := 1 / (1 + math.Exp(-z))
	positive := n.Loss(Data{X: x, Y: []float64{1}})
	assert.Assert(t, positive > 0)
	assert.Assert(t, math.Abs(positive+math.Log(p)) < 1e-9, "%v vs %v", positive, -math.Log(p))
	negative := n.Loss(Data{X: x, Y: []float64{0}})
	assert.Assert(t, math.Abs(negative+math.Log(1-p)) < 1e-9, "%v vs %v", negative, -math.Log(1-p))
	two := mat.NewDense(2, 3, nil)
	two.SetRow(0, x.RawRowView(0))
	two.SetRow(1, x.RawRowView(0))
	both := n.Loss(Data{X: two, Y: []float64{1, 0}})
	assert.Assert(t, math.Abs(both-(positive+negative)/2) < 1e-9)
	assert.Equal(t, n.Loss(Data{X: x, Y: []float64{2}}), 0.0)
	assert.Equal(t, n.Loss(Data{X: x, Y: []float64{0.5}}), 0.0)
}

func Test_CategoricalCrossEntropyValue(t *testing.T) {
	n := Build(Architecture{Inputs: 3, Hidden: []int{4}, Output: Softmax, Units: 3, Seed: 6})
	x := oneRow(3)
	z := n.forward(x, nil).logits.RawRowView(0)
	var sum float64
	for _, v := range z {
		sum += math.Exp(v)
	}
	for c := 0; c < 3; c++ {
		want := -math.Log(math.Exp(z[c]) / sum)
		got := n.Loss(Data{X: x, Y: []float64{float64(c)}})
		assert.Assert(t, got > 0)
		assert.Assert(t, math.Abs(got-want) < 1e-9, "class %d: %v vs %v", c, got, want)
	}
	assert.Equal(t, n.Loss(Data{X: x, Y: []float64{3}}), 0.0)
}

func Test_GeluGrad(t *testing.T) {
	for _, x := range []float64{-3, -0.5, 0, 0.7, 2.5} {
		g := (gelu(x+1e-6) - gelu(x-1e-6)) / 2e-6
		assert.Assert(t, math.Abs(g-geluGrad(x)) < 1e-6)
	}
}

func Test_DropoutMask(t *testing.T) {
	a := mat.NewDense(100, 10, nil)
	a.Apply(func(_, _ int, _ float64) float64 { return 1 }, a)
	out, mask := dropout(a, 0.5, rand.New(rand.NewSource(1)))
	assert.Assert(t, mask != nil)
	zeros := 0
	for i := 0; i < 100; i++ {
		for j := 0; j < 10; j++ {
			v := out.At(i, j)
			assert.Assert(t, v == 0 || v == 2)
			if v == 0 {
				zeros++
			}
		}
	}
	assert.Assert(t, zeros > 400 && zeros < 600)
	same, mask := dropout(a, 0.5, nil)
	assert.Assert(t, same == a && mask == nil)
}
