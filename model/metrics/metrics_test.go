package metrics_test

import (
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/preprocess"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
	"math"
	"math/rand"
	"testing"
)

func column(a ...float64) *mat.Dense {
	return mat.NewDense(len(a), 1, a)
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func Test_Regression(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for k := 0; k < 20; k++ {
		n := 1 + rng.Intn(50)
		y := make([]float64, n)
		p := make([]float64, n)
		for i := range y {
			y[i] = rng.NormFloat64() * 10
			p[i] = y[i] + rng.NormFloat64()
		}
		v := metrics.Score(column(p...), y, preprocess.Regression, []string{"mse", "RMSE", "mae", "r2"})
		assert.Assert(t, near(v["rmse"], math.Sqrt(v["mse"])))
		assert.Assert(t, v["mae"] <= v["rmse"]+1e-12)
	}
	v := metrics.Score(column(2, 4, 6), []float64{1, 4, 8}, preprocess.Regression, []string{"mse", "mae", "mape", "r2"})
	assert.Assert(t, near(v["mse"], 5.0/3))
	assert.Assert(t, near(v["mae"], 1))
	assert.Assert(t, near(v["mape"], 100*(1+0+0.25)/3))
	// mean 13/3, total sum of squares 74/3
	assert.Assert(t, near(v["r2"], 1-5/(74.0/3)))
}

func Test_PerfectSeparator(t *testing.T) {
	p := column(0.9, 0.8, 0.95, 0.1, 0.2, 0.05)
	y := []float64{1, 1, 1, 0, 0, 0}
	v := metrics.Score(p, y, preprocess.Binary, []string{"roc_auc", "accuracy", "precision", "recall", "f1", "pr_auc"})
	assert.Assert(t, near(v["roc_auc"], 1))
	assert.Assert(t, near(v["accuracy"], 1))
	assert.Assert(t, near(v["precision"], 1))
	assert.Assert(t, near(v["recall"], 1))
	assert.Assert(t, near(v["f1"], 1))
	assert.Assert(t, v["pr_auc"] > 0 && v["pr_auc"] <= 1)
}

func Test_AlwaysPositive(t *testing.T) {
	p := column(1, 1, 1, 1)
	y := []float64{1, 0, 0, 1}
	v := metrics.Score(p, y, preprocess.Binary, []string{"recall", "precision", "accuracy"})
	assert.Equal(t, v["recall"], 1.0)
	assert.Equal(t, v["precision"], 0.5)
	assert.Equal(t, v["accuracy"], 0.5)
}

func Test_RandomRocAuc(t *testing.T) {
	p := column(0.5, 0.5, 0.5, 0.5)
	y := []float64{1, 0, 1, 0}
	v := metrics.Score(p, y, preprocess.Binary, []string{"roc_auc"})
	assert.Assert(t, near(v["roc_auc"], 0.5))
}

func Test_Multiclass(t *testing.T) {
	p := mat.NewDense(4, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.3, 0.3, 0.4,
		0.2, 0.5, 0.3,
	})
	y := []float64{0, 1, 2, -1}
	v := metrics.Score(p, y, preprocess.Multiclass, []string{"accuracy", "roc_auc", "nonsense"})
	assert.Equal(t, v["accuracy"], 1.0)
	_, ok := v["roc_auc"]
	assert.Assert(t, !ok)
	_, ok = v["nonsense"]
	assert.Assert(t, !ok)
}

func Test_Directions(t *testing.T) {
	for _, n := range []string{"rmse", "mse", "mae", "mape"} {
		assert.Equal(t, metrics.DirectionOf(n), metrics.LowerIsBetter)
		assert.Assert(t, metrics.Better(n, 1, 2))
	}
	for _, n := range []string{"r2", "accuracy", "precision", "recall", "f1", "roc_auc", "pr_auc"} {
		assert.Equal(t, metrics.DirectionOf(n), metrics.HigherIsBetter)
		assert.Assert(t, metrics.Better(n, 2, 1))
		assert.Assert(t, !metrics.Better(n, 1, 1))
	}
	assert.DeepEqual(t, metrics.Names(preprocess.Regression), []string{"mae", "mape", "mse", "r2", "rmse"})
	assert.Assert(t, metrics.Applicable("accuracy", preprocess.Multiclass))
	assert.Assert(t, !metrics.Applicable("f1", preprocess.Multiclass))
	assert.Equal(t, metrics.DefaultPrimary(preprocess.Binary), "accuracy")
}

func Test_Empty(t *testing.T) {
	v := metrics.Score(mat.NewDense(1, 1, []float64{0.3}), []float64{-1}, preprocess.Binary, []string{"accuracy"})
	assert.Assert(t, math.IsNaN(v["accuracy"]))
}
