package model

import (
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/automl/tables"
	"gonum.org/v1/gonum/mat"
	"math"
	"sync"
)

/*
Dataset is the encoded data converted into train, validation and test tensors.
It is built once per cycle and released exactly once when the cycle finishes.
*/
type Dataset struct {
	Target     string
	Task       preprocess.TargetType
	NumClasses int
	Features   []string // encoded feature columns, the order of tensor columns

	Train, Validation, Test mlp.Data

	once     sync.Once
	released bool
}

/*
NewDataset converts the encoder result into tensors
*/
func NewDataset(r *preprocess.Result) *Dataset {
	return &Dataset{
		Target:     r.Target,
		Task:       r.TargetType,
		NumClasses: r.NumClasses(),
		Features:   r.Features,
		Train:      Tensors(r.Train, r.Features, r.Target),
		Validation: Tensors(r.Validation, r.Features, r.Target),
		Test:       Tensors(r.Test, r.Features, r.Target),
	}
}

/*
Tensors gathers features of encoded rows into a matrix and target values into labels,
absent values become NaN
*/
func Tensors(rows []tables.Row, features []string, target string) mlp.Data {
	if len(rows) == 0 || len(features) == 0 {
		return mlp.Data{Y: []float64{}}
	}
	x := mat.NewDense(len(rows), len(features), nil)
	y := make([]float64, len(rows))
	for i, row := range rows {
		r := x.RawRowView(i)
		for j, c := range features {
			r[j] = value(row[c])
		}
		y[i] = value(row[target])
	}
	return mlp.Data{X: x, Y: y}
}

func value(v interface{}) float64 {
	if f, ok := tables.Number(v); ok {
		return f
	}
	return math.NaN()
}

/*
Release drops all tensors, subsequent calls do nothing
*/
func (d *Dataset) Release() {
	d.once.Do(func() {
		d.Train, d.Validation, d.Test = mlp.Data{}, mlp.Data{}, mlp.Data{}
		d.released = true
	})
}

func (d *Dataset) Released() bool {
	return d.released
}
