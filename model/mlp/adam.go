package mlp

import "math"

const (
	beta1       = 0.9
	beta2       = 0.999
	adamEpsilon = 1e-7
)

// adam is the adaptive moment estimation optimizer over network parameters
type adam struct {
	lr     float64
	params []param
	m, v   [][]float64
	t      int
}

func newAdam(lr float64, params []param) *adam {
	a := &adam{lr: lr, params: params}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p.value)))
		a.v = append(a.v, make([]float64, len(p.value)))
	}
	return a
}

func (a *adam) step() {
	a.t++
	c1 := 1 - math.Pow(beta1, float64(a.t))
	c2 := 1 - math.Pow(beta2, float64(a.t))
	for k, p := range a.params {
		m, v := a.m[k], a.v[k]
		for i, g := range p.grad {
			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*g*g
			p.value[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
		}
	}
}
