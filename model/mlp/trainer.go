package mlp

import (
	"context"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/zorros"
	"gonum.org/v1/gonum/mat"
	"math"
	"math/rand"
	"runtime"
)

// Patience is a count of epochs without validation loss improvement stopping training
const Patience = 3

// mini-batches between yields inside an epoch
const yieldBatches = 256

/*
Data is a feature matrix with labels, one label per row
*/
type Data struct {
	X *mat.Dense
	Y []float64
}

func (d Data) Len() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

func (d Data) Features() int {
	if d.X == nil {
		return 0
	}
	_, c := d.X.Dims()
	return c
}

func (d Data) rows(idx []int) Data {
	x := mat.NewDense(len(idx), d.Features(), nil)
	y := make([]float64, len(idx))
	for i, j := range idx {
		x.SetRow(i, d.X.RawRowView(j))
		y[i] = d.Y[j]
	}
	return Data{x, y}
}

/*
Trainer fits one network to the train split using validation split for early stopping
*/
type Trainer struct {
	Task       preprocess.TargetType
	NumClasses int
}

/*
Fit builds and trains a network, onEpoch is called after every pass over train data.
It returns the network and the number of epochs actually trained.
Training is aborted between epochs when ctx is done.
*/
func (tr Trainer) Fit(ctx context.Context, train, validation Data, hp hyperopt.Config, onEpoch func(epoch, total int)) (*Network, int, error) {
	if err := hp.Validate(); err != nil {
		return nil, 0, zorros.Trace(err)
	}
	rows := train.Len()
	if rows == 0 {
		return nil, 0, zorros.Errorf("train data is empty")
	}
	if len(train.Y) != rows || len(validation.Y) != validation.Len() {
		return nil, 0, zorros.Errorf("labels count does not match features rows")
	}
	if validation.Len() > 0 && validation.Features() != train.Features() {
		return nil, 0, zorros.Errorf("validation has %d features but train has %d", validation.Features(), train.Features())
	}
	if tr.Task == preprocess.Multiclass && tr.NumClasses < 2 {
		return nil, 0, zorros.Errorf("multiclass target needs at least 2 classes")
	}

	net := Build(NewArchitecture(train.Features(), rows, tr.Task, tr.NumClasses, hp))
	net.allocGrad()
	defer net.dropGrad()
	opt := newAdam(hp.LearningRate, net.params())
	rng := rand.New(rand.NewSource(hp.Seed))

	best, wait, epochs := math.Inf(1), 0, 0
	for e := 0; e < hp.Epochs; e++ {
		if err := ctx.Err(); err != nil {
			net.Release()
			return nil, epochs, zorros.Trace(err)
		}
		perm := rng.Perm(rows)
		for b, start := 0, 0; start < rows; b, start = b+1, start+hp.BatchSize {
			end := start + hp.BatchSize
			if end > rows {
				end = rows
			}
			batch := train.rows(perm[start:end])
			p := net.forward(batch.X, rng)
			_, d := net.objective(p.logits, batch.Y)
			net.backward(p, d)
			opt.step()
			if b > 0 && b%yieldBatches == 0 {
				runtime.Gosched()
			}
		}
		epochs = e + 1
		if onEpoch != nil {
			onEpoch(epochs, hp.Epochs)
		}
		runtime.Gosched()
		if hp.EarlyStopping && validation.Len() > 0 {
			if l := net.Loss(validation); l < best {
				best, wait = l, 0
			} else if wait++; wait >= Patience {
				break
			}
		}
	}
	return net, epochs, nil
}
