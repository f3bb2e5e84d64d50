/*
Package mlp implements the pyramidal residual perceptron and its trainer.

The first hidden layer width is given or derived from the data shape, every next
layer is four times narrower. Outputs of all hidden layers and the raw input are
concatenated before the task specific output unit.
*/
package mlp

import (
	"fmt"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/preprocess"
	"math"
	"math/rand"
	"strings"
)

/*
Output is the output unit kind
*/
type Output int

const (
	Linear Output = iota
	Sigmoid
	Softmax
)

func (o Output) String() string {
	switch o {
	case Sigmoid:
		return "sigmoid"
	case Softmax:
		return "softmax"
	}
	return "linear"
}

/*
Architecture is a network topology
*/
type Architecture struct {
	Inputs  int
	Hidden  []int // hidden layers widths
	Dropout float64
	L1      float64 // L1 penalty of the first hidden layer weights
	Output  Output
	Units   int // output units
	Seed    int64
}

/*
AutoHiddenDim is the power of two closest from above to (rows/features)^0.4 capped by MaxHiddenDim
*/
func AutoHiddenDim(trainRows, features int) int {
	if features < 1 {
		features = 1
	}
	r := math.Ceil(math.Pow(float64(trainRows)/float64(features), 0.4))
	if r < 1 {
		r = 1
	}
	h := math.Pow(2, math.Ceil(math.Log2(r)))
	return int(math.Min(h, hyperopt.MaxHiddenDim))
}

/*
HiddenWidths returns widths of hidden layers starting from first, every next one is ceil(prev/4) while not less than 2
*/
func HiddenWidths(first int) []int {
	if first < 1 {
		first = 1
	}
	r := []int{first}
	for w := (first + 3) / 4; w >= 2; w = (w + 3) / 4 {
		r = append(r, w)
	}
	return r
}

/*
NewArchitecture sizes a network for the data shape, target and hyper-parameters
*/
func NewArchitecture(features, trainRows int, tt preprocess.TargetType, numClasses int, hp hyperopt.Config) Architecture {
	h := hp.HiddenDim
	if hp.HiddenMode == hyperopt.Auto {
		h = AutoHiddenDim(trainRows, features)
	}
	if h > hyperopt.MaxHiddenDim {
		h = hyperopt.MaxHiddenDim
	}
	a := Architecture{
		Inputs:  features,
		Hidden:  HiddenWidths(h),
		Dropout: hp.DropoutRate,
		L1:      hp.L1Penalty,
		Seed:    hp.Seed,
		Units:   1,
	}
	switch tt {
	case preprocess.Binary:
		a.Output = Sigmoid
	case preprocess.Multiclass:
		a.Output = Softmax
		a.Units = numClasses
	}
	return a
}

/*
Width is the width of concatenated input and hidden outputs
*/
func (a Architecture) Width() int {
	w := a.Inputs
	for _, h := range a.Hidden {
		w += h
	}
	return w
}

/*
Build creates network with Glorot uniform initialized weights,
every layer draws weights from its own generator seeded by Seed plus the layer index
*/
func Build(a Architecture) *Network {
	n := &Network{Architecture: a}
	in := a.Inputs
	for i, h := range a.Hidden {
		n.layers = append(n.layers, newDense(in, h, rand.New(rand.NewSource(a.Seed+int64(i)))))
		in = h
	}
	n.out = newDense(a.Width(), a.Units, rand.New(rand.NewSource(a.Seed+int64(len(a.Hidden)))))
	return n
}

/*
Summary describes network topology for humans
*/
type Summary struct {
	Inputs      int
	Parameters  int
	DenseLayers int
	Hidden      []int
	Concat      int
}

func (a Architecture) Summary() Summary {
	s := Summary{Inputs: a.Inputs, Hidden: a.Hidden, Concat: a.Width(), DenseLayers: len(a.Hidden) + 1}
	in := a.Inputs
	for _, h := range a.Hidden {
		s.Parameters += in*h + h
		in = h
	}
	s.Parameters += a.Width()*a.Units + a.Units
	return s
}

/*
HiddenSizes renders hidden layers widths like `64 → 16 → 4 (+) 93`
*/
func (s Summary) HiddenSizes() string {
	w := make([]string, len(s.Hidden))
	for i, h := range s.Hidden {
		w[i] = fmt.Sprint(h)
	}
	return fmt.Sprintf("%v (+) %d", strings.Join(w, " → "), s.Concat)
}

func (s Summary) String() string {
	return fmt.Sprintf("inputs: %d, parameters: %v, dense layers: %d, hidden: %v",
		s.Inputs, FormatCount(s.Parameters), s.DenseLayers, s.HiddenSizes())
}

/*
FormatCount abbreviates big counts as 1.2K or 3.45M
*/
func FormatCount(n int) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	}
	return fmt.Sprint(n)
}
