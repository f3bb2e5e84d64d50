package mlp_test

import (
	"bytes"
	"context"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
	"math"
	"math/rand"
	"runtime"
	"testing"
)

func synthetic(rows int, seed int64, label func(x []float64) float64) mlp.Data {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(rows, 3, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		r := x.RawRowView(i)
		for j := range r {
			r[j] = rng.NormFloat64()
		}
		y[i] = label(r)
	}
	return mlp.Data{X: x, Y: y}
}

func linear(x []float64) float64 { return 2*x[0] - x[1] }

func positive(x []float64) float64 {
	if x[0] > 0 {
		return 1
	}
	return 0
}

func manual(width int) hyperopt.Config {
	hp := hyperopt.Default()
	hp.HiddenMode = hyperopt.Manual
	hp.HiddenDim = width
	return hp
}

func Test_AutoHiddenDim(t *testing.T) {
	assert.Equal(t, mlp.AutoHiddenDim(700, 7), 8)
	assert.Equal(t, mlp.AutoHiddenDim(700, 5), 8)
	assert.Equal(t, mlp.AutoHiddenDim(3, 10), 1)
	assert.Equal(t, mlp.AutoHiddenDim(1000000000, 1), hyperopt.MaxHiddenDim)
}

func Test_HiddenWidths(t *testing.T) {
	assert.DeepEqual(t, mlp.HiddenWidths(64), []int{64, 16, 4})
	assert.DeepEqual(t, mlp.HiddenWidths(8), []int{8, 2})
	assert.DeepEqual(t, mlp.HiddenWidths(2), []int{2})
	assert.DeepEqual(t, mlp.HiddenWidths(512), []int{512, 128, 32, 8, 2})
}

func Test_NewArchitecture(t *testing.T) {
	a := mlp.NewArchitecture(3, 100, preprocess.Multiclass, 4, manual(1024))
	assert.DeepEqual(t, a.Hidden, []int{512, 128, 32, 8, 2})
	assert.Equal(t, a.Output, mlp.Softmax)
	assert.Equal(t, a.Units, 4)
	a = mlp.NewArchitecture(5, 700, preprocess.Binary, 2, hyperopt.Default())
	assert.DeepEqual(t, a.Hidden, []int{8, 2})
	assert.Equal(t, a.Output, mlp.Sigmoid)
	assert.Equal(t, a.Units, 1)
	assert.Equal(t, a.Seed, int64(42))
}

func Test_Summary(t *testing.T) {
	a := mlp.Architecture{Inputs: 3, Hidden: []int{8, 2}, Output: mlp.Linear, Units: 1}
	s := a.Summary()
	assert.Equal(t, s.Parameters, 3*8+8+8*2+2+13+1)
	assert.Equal(t, s.DenseLayers, 3)
	assert.Equal(t, s.Concat, 13)
	assert.Equal(t, s.HiddenSizes(), "8 → 2 (+) 13")
	assert.Equal(t, mlp.FormatCount(999), "999")
	assert.Equal(t, mlp.FormatCount(1234), "1.2K")
	assert.Equal(t, mlp.FormatCount(3450000), "3.45M")
}

func Test_BuildDeterministic(t *testing.T) {
	d := synthetic(10, 1, linear)
	a := mlp.Architecture{Inputs: 3, Hidden: []int{8, 2}, Output: mlp.Linear, Units: 1, Seed: 7}
	p1, err := mlp.Build(a).Predict(d.X)
	assert.NilError(t, err)
	p2, err := mlp.Build(a).Predict(d.X)
	assert.NilError(t, err)
	assert.Assert(t, mat.Equal(p1, p2))
	a.Seed = 8
	p3, err := mlp.Build(a).Predict(d.X)
	assert.NilError(t, err)
	assert.Assert(t, !mat.Equal(p1, p3))
}

func Test_FitRegression(t *testing.T) {
	train := synthetic(256, 1, linear)
	valid := synthetic(64, 2, linear)
	hp := manual(16)
	hp.LearningRate = 0.01
	hp.Epochs = 30
	hp.EarlyStopping = false
	tr := mlp.Trainer{Task: preprocess.Regression}
	untrained := mlp.Build(mlp.NewArchitecture(3, 256, preprocess.Regression, 0, hp)).Loss(valid)
	calls := 0
	net, epochs, err := tr.Fit(context.Background(), train, valid, hp, func(epoch, total int) {
		calls++
		assert.Equal(t, epoch, calls)
		assert.Equal(t, total, 30)
	})
	assert.NilError(t, err)
	assert.Equal(t, epochs, 30)
	assert.Equal(t, calls, 30)
	assert.Assert(t, net.Loss(valid) < untrained/2, "%v >= %v/2", net.Loss(valid), untrained)
}

func Test_FitBinary(t *testing.T) {
	train := synthetic(300, 3, positive)
	test := synthetic(100, 4, positive)
	hp := manual(8)
	hp.LearningRate = 0.01
	hp.Epochs = 40
	net, _, err := mlp.Trainer{Task: preprocess.Binary}.Fit(context.Background(), train, test, hp, nil)
	assert.NilError(t, err)
	p, err := net.Predict(test.X)
	assert.NilError(t, err)
	correct := 0
	for i, y := range test.Y {
		v := p.At(i, 0)
		assert.Assert(t, v > 0 && v < 1)
		if (v > 0.5) == (y == 1) {
			correct++
		}
	}
	assert.Assert(t, correct > 90, "%d correct of 100", correct)
}

func Test_FitMulticlass(t *testing.T) {
	band := func(x []float64) float64 {
		switch {
		case x[0] < -0.5:
			return 0
		case x[0] < 0.5:
			return 1
		}
		return 2
	}
	train := synthetic(120, 5, band)
	hp := manual(8)
	hp.Epochs = 5
	net, _, err := mlp.Trainer{Task: preprocess.Multiclass, NumClasses: 3}.Fit(context.Background(), train, mlp.Data{}, hp, nil)
	assert.NilError(t, err)
	p, err := net.Predict(train.X)
	assert.NilError(t, err)
	r, c := p.Dims()
	assert.Equal(t, r, 120)
	assert.Equal(t, c, 3)
	for i := 0; i < r; i++ {
		assert.Assert(t, math.Abs(mat.Sum(p.RowView(i))-1) < 1e-9)
	}
	_, _, err = mlp.Trainer{Task: preprocess.Multiclass, NumClasses: 1}.Fit(context.Background(), train, mlp.Data{}, hp, nil)
	assert.ErrorContains(t, err, "at least 2 classes")
}

func Test_EarlyStopping(t *testing.T) {
	train := synthetic(64, 6, linear)
	valid := synthetic(16, 7, func([]float64) float64 { return math.NaN() })
	hp := manual(4)
	hp.Epochs = 50
	// validation loss does not change, so the best one is the first epoch
	_, epochs, err := mlp.Trainer{Task: preprocess.Regression}.Fit(context.Background(), train, valid, hp, nil)
	assert.NilError(t, err)
	assert.Equal(t, epochs, 1+mlp.Patience)
	hp.EarlyStopping = false
	_, epochs, err = mlp.Trainer{Task: preprocess.Regression}.Fit(context.Background(), train, valid, hp, nil)
	assert.NilError(t, err)
	assert.Equal(t, epochs, 50)
}

func Test_FitCanceled(t *testing.T) {
	train := synthetic(64, 6, linear)
	ctx, cancel := context.WithCancel(context.Background())
	hp := manual(4)
	hp.EarlyStopping = false
	net, epochs, err := mlp.Trainer{Task: preprocess.Regression}.Fit(ctx, train, mlp.Data{}, hp, func(epoch, _ int) {
		if epoch == 2 {
			cancel()
		}
	})
	assert.Assert(t, err != nil)
	assert.Assert(t, net == nil)
	assert.Equal(t, epochs, 2)
}

func Test_FitYieldsBetweenEpochs(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	train := synthetic(8, 7, linear)
	hp := manual(4)
	hp.BatchSize = 8
	hp.Epochs = 100000
	hp.EarlyStopping = false
	ctx, cancel := context.WithCancel(context.Background())
	go cancel()
	net, epochs, err := mlp.Trainer{Task: preprocess.Regression}.Fit(ctx, train, mlp.Data{}, hp, nil)
	assert.Assert(t, err != nil)
	assert.Assert(t, net == nil)
	assert.Assert(t, epochs < 10, "%d epochs done before cancel", epochs)
}

func Test_FitBadInput(t *testing.T) {
	tr := mlp.Trainer{Task: preprocess.Regression}
	hp := manual(4)
	_, _, err := tr.Fit(context.Background(), mlp.Data{}, mlp.Data{}, hp, nil)
	assert.ErrorContains(t, err, "empty")
	train := synthetic(8, 1, linear)
	_, _, err = tr.Fit(context.Background(), train, mlp.Data{X: mat.NewDense(2, 2, nil), Y: []float64{0, 0}}, hp, nil)
	assert.ErrorContains(t, err, "features")
	hp.LearningRate = 0
	_, _, err = tr.Fit(context.Background(), train, mlp.Data{}, hp, nil)
	assert.ErrorContains(t, err, "learning rate")
}

func Test_SaveLoad(t *testing.T) {
	train := synthetic(64, 8, positive)
	hp := manual(8)
	hp.Epochs = 3
	hp.DropoutRate = 0.2
	net, _, err := mlp.Trainer{Task: preprocess.Binary}.Fit(context.Background(), train, mlp.Data{}, hp, nil)
	assert.NilError(t, err)
	bf := &bytes.Buffer{}
	assert.NilError(t, net.Save(bf))
	loaded, err := mlp.Load(bf)
	assert.NilError(t, err)
	assert.DeepEqual(t, loaded.Architecture, net.Architecture)
	p1, err := net.Predict(train.X)
	assert.NilError(t, err)
	p2, err := loaded.Predict(train.X)
	assert.NilError(t, err)
	assert.Assert(t, mat.Equal(p1, p2))
	_, err = mlp.Load(bytes.NewReader([]byte("garbage")))
	assert.Assert(t, err != nil)
}

func Test_Release(t *testing.T) {
	net := mlp.Build(mlp.Architecture{Inputs: 3, Hidden: []int{4}, Output: mlp.Linear, Units: 1})
	d := synthetic(4, 1, linear)
	_, err := net.Predict(mat.NewDense(4, 2, nil))
	assert.ErrorContains(t, err, "expects 3 features")
	net.Release()
	assert.Assert(t, net.Released())
	_, err = net.Predict(d.X)
	assert.ErrorContains(t, err, "released")
	assert.Assert(t, math.IsNaN(net.Loss(d)))
	assert.Assert(t, net.Save(&bytes.Buffer{}) != nil)
}
