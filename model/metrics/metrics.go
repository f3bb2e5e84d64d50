/*
Package metrics evaluates predictions against labels.

Every metric carries a fixed direction telling whether a higher or a lower value
is better, both best-model selection and attempts ranking use it.
*/
package metrics

import (
	"fmt"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/zorros/zlog"
	"gonum.org/v1/gonum/mat"
	"math"
	"sort"
	"strings"
)

/*
Direction tells which metric values are better
*/
type Direction int

const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

const (
	MSE       = "mse"
	RMSE      = "rmse"
	MAE       = "mae"
	MAPE      = "mape"
	R2        = "r2"
	Accuracy  = "accuracy"
	Precision = "precision"
	Recall    = "recall"
	F1        = "f1"
	RocAuc    = "roc_auc"
	PrAuc     = "pr_auc"
)

// Thresholds is a number of equally spaced thresholds in [0,1] swept by AUC metrics
const Thresholds = 100

type task int

const (
	regression task = 1 << iota
	binary
	multiclass
)

type definition struct {
	direction Direction
	tasks     task
	eval      func(*sample) float64
}

var definitions = map[string]definition{
	MSE:       {LowerIsBetter, regression, func(s *sample) float64 { return s.mse() }},
	RMSE:      {LowerIsBetter, regression, func(s *sample) float64 { return math.Sqrt(s.mse()) }},
	MAE:       {LowerIsBetter, regression, (*sample).mae},
	MAPE:      {LowerIsBetter, regression, (*sample).mape},
	R2:        {HigherIsBetter, regression, (*sample).r2},
	Accuracy:  {HigherIsBetter, binary | multiclass, (*sample).accuracy},
	Precision: {HigherIsBetter, binary, func(s *sample) float64 { return s.confusion(0.5).precision() }},
	Recall:    {HigherIsBetter, binary, func(s *sample) float64 { return s.confusion(0.5).recall() }},
	F1:        {HigherIsBetter, binary, func(s *sample) float64 { return s.confusion(0.5).f1() }},
	RocAuc:    {HigherIsBetter, binary, (*sample).rocAuc},
	PrAuc:     {HigherIsBetter, binary, (*sample).prAuc},
}

func taskOf(tt preprocess.TargetType) task {
	switch tt {
	case preprocess.Binary:
		return binary
	case preprocess.Multiclass:
		return multiclass
	}
	return regression
}

/*
Known reports the metric name is supported
*/
func Known(name string) bool {
	_, ok := definitions[strings.ToLower(name)]
	return ok
}

/*
Applicable reports the metric can be calculated for the target type
*/
func Applicable(name string, tt preprocess.TargetType) bool {
	d, ok := definitions[strings.ToLower(name)]
	return ok && d.tasks&taskOf(tt) != 0
}

/*
DirectionOf returns metric direction, unknown metrics are higher-is-better
*/
func DirectionOf(name string) Direction {
	if d, ok := definitions[strings.ToLower(name)]; ok {
		return d.direction
	}
	return HigherIsBetter
}

/*
Better reports a is strictly better than b for the metric
*/
func Better(name string, a, b float64) bool {
	if DirectionOf(name) == LowerIsBetter {
		return a < b
	}
	return a > b
}

/*
Names lists metrics applicable to the target type in a stable order
*/
func Names(tt preprocess.TargetType) []string {
	r := []string{}
	for n, d := range definitions {
		if d.tasks&taskOf(tt) != 0 {
			r = append(r, n)
		}
	}
	sort.Strings(r)
	return r
}

/*
DefaultPrimary is the metric used to compare models when nothing is specified
*/
func DefaultPrimary(tt preprocess.TargetType) string {
	if tt.Classification() {
		return Accuracy
	}
	return RMSE
}

/*
Values maps metric name to its value
*/
type Values map[string]float64

func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = fmt.Sprintf("%v: %.5f", k, v[k])
	}
	return strings.Join(s, ", ")
}

/*
Score calculates requested metrics. Predictions is a one column matrix of values or
probabilities of the positive class, or a matrix of class probabilities for multiclass.
Unrecognized or inapplicable names are skipped with a warning.
*/
func Score(predictions mat.Matrix, labels []float64, tt preprocess.TargetType, names []string) Values {
	s := newSample(predictions, labels, tt)
	r := Values{}
	for _, n := range names {
		name := strings.ToLower(n)
		d, ok := definitions[name]
		if !ok {
			zlog.Warning(fmt.Sprintf("unrecognized metric `%v` is ignored", n))
			continue
		}
		if d.tasks&taskOf(tt) == 0 {
			zlog.Warning(fmt.Sprintf("metric `%v` is not applicable to %v target", n, tt))
			continue
		}
		if _, done := r[name]; done {
			continue
		}
		r[name] = d.eval(s)
	}
	return r
}
