package store_test

import (
	"context"
	"go-ml.dev/pkg/automl/model"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/automl/store"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
	"math"
	"path/filepath"
	"testing"
)

func open(t *testing.T) *store.Store {
	s, err := store.Open(filepath.Join(t.TempDir(), "db", "models.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func network() *mlp.Network {
	return mlp.Build(mlp.Architecture{Inputs: 2, Hidden: []int{4}, Output: mlp.Sigmoid, Units: 1, Seed: 3})
}

func report(net *mlp.Network) *model.Report {
	hp := hyperopt.Default()
	return &model.Report{
		Model:    net,
		History:  []model.Attempt{{Iteration: 1, Hyperparameters: hp, EpochsTrained: 7}, {Iteration: 2, Hyperparameters: hp, EpochsTrained: 12}},
		TheBest:  2,
		Primary:  metrics.Accuracy,
		Features: []string{"a", "b"},
		Train:    metrics.Values{metrics.Accuracy: 0.9},
		Validation: metrics.Values{
			metrics.Accuracy: 0.8,
			metrics.RocAuc:   math.NaN(),
		},
		Test: metrics.Values{metrics.Accuracy: 0.75},
	}
}

func Test_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	net := network()
	params := &preprocess.Params{Target: "label", TargetType: preprocess.Binary, Features: []string{"a", "b"}, Classes: preprocess.NewClassMapping([]string{"no", "yes"})}
	e := store.NewEntry("first", report(net), params)
	assert.Equal(t, e.Metadata.EpochsTrained, 12)
	assert.Equal(t, e.Metadata.BestIteration, 2)
	assert.Equal(t, e.Metadata.Iterations, 2)
	assert.Equal(t, e.Metadata.Target, "label")
	assert.Assert(t, e.Metadata.Architecture != "")

	ok, err := s.Exists(ctx, "first")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
	assert.NilError(t, s.Save(ctx, e, net))
	assert.Assert(t, e.ID != "")
	ok, err = s.Exists(ctx, "first")
	assert.NilError(t, err)
	assert.Assert(t, ok)

	err = s.Save(ctx, store.NewEntry("first", report(net), params), net)
	assert.Assert(t, xerrors.Is(err, store.ErrNameExists))

	loaded, lnet, err := s.Load(ctx, "first")
	assert.NilError(t, err)
	assert.Equal(t, loaded.ID, e.ID)
	assert.Equal(t, loaded.Metadata.TargetType, preprocess.Binary)
	assert.DeepEqual(t, loaded.Metadata.Encoding.Classes.Labels, []string{"no", "yes"})
	assert.DeepEqual(t, loaded.Metadata.Hyperparameters, hyperopt.Default())
	assert.Equal(t, loaded.Results.Test[metrics.Accuracy], 0.75)
	_, ok = loaded.Results.Validation[metrics.RocAuc]
	assert.Assert(t, !ok)

	x := mat.NewDense(3, 2, []float64{0, 1, -1, 2, 0.5, 0.5})
	p1, err := net.Predict(x)
	assert.NilError(t, err)
	p2, err := lnet.Predict(x)
	assert.NilError(t, err)
	assert.Assert(t, mat.Equal(p1, p2))

	_, _, err = s.Load(ctx, "second")
	assert.Assert(t, xerrors.Is(err, store.ErrNotFound))
}

func Test_ListDelete(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	net := network()
	for _, n := range []string{"a", "b", "c"} {
		assert.NilError(t, s.Save(ctx, &store.Entry{Name: n}, net))
	}
	l, err := s.List(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(l), 3)
	assert.DeepEqual(t, []string{l[0].Name, l[1].Name, l[2].Name}, []string{"c", "b", "a"})
	assert.Assert(t, !l[0].Timestamp.Before(l[1].Timestamp))

	assert.NilError(t, s.Delete(ctx, "b"))
	assert.Assert(t, xerrors.Is(s.Delete(ctx, "b"), store.ErrNotFound))
	l, err = s.List(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(l), 2)

	assert.ErrorContains(t, s.Save(ctx, &store.Entry{}, net), "empty")
}

func Test_SaveReleased(t *testing.T) {
	s := open(t)
	net := network()
	net.Release()
	assert.ErrorContains(t, s.Save(context.Background(), &store.Entry{Name: "x"}, net), "released")
}
