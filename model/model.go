/*
Package model runs the search of a residual perceptron: it trains attempts one by one
under a budget, keeps the best one and adapts hyper-parameters between attempts.
*/
package model

import (
	"context"
	"github.com/google/uuid"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"gonum.org/v1/gonum/mat"
	"io"
	"sort"
	"time"
)

/*
Model is a trained predictor owning some resources until released
*/
type Model interface {
	Predict(x mat.Matrix) (*mat.Dense, error)
	Release()
}

/*
Fitted is a result of one training attempt
*/
type Fitted struct {
	Model  Model
	Epochs int // epochs actually trained
	Width  int // first hidden layer width
}

/*
Trainer fits one model with the given hyper-parameters
*/
type Trainer interface {
	Fit(ctx context.Context, train, validation mlp.Data, hp hyperopt.Config, onEpoch func(epoch, total int)) (Fitted, error)
}

/*
MLP trains the residual perceptron
*/
type MLP struct {
	Task       preprocess.TargetType
	NumClasses int
}

func (m MLP) Fit(ctx context.Context, train, validation mlp.Data, hp hyperopt.Config, onEpoch func(epoch, total int)) (Fitted, error) {
	net, epochs, err := mlp.Trainer{Task: m.Task, NumClasses: m.NumClasses}.Fit(ctx, train, validation, hp, onEpoch)
	if err != nil {
		return Fitted{}, err
	}
	return Fitted{Model: net, Epochs: epochs, Width: net.Hidden[0]}, nil
}

/*
Attempt is a completed training iteration
*/
type Attempt struct {
	Iteration       int // 1-based
	Hyperparameters hyperopt.Config
	EpochsTrained   int
	Width           int
	Train           metrics.Values // primary metric only
	Validation      metrics.Values
}

/*
Report is a result of the finished cycle
*/
type Report struct {
	ID       uuid.UUID
	Model    Model     // the best model, owned by the report
	History  []Attempt // attempts in iteration order
	TheBest  int       // 1-based iteration of the best attempt
	Primary  string    // primary metric
	Elapsed  time.Duration
	Features []string

	Train, Validation, Test metrics.Values // all requested metrics of the best model
}

/*
Best returns the best attempt
*/
func (r *Report) Best() Attempt {
	return r.History[r.TheBest-1]
}

/*
Ranked returns attempts ordered by validation value of the primary metric, the best first
*/
func (r *Report) Ranked() []Attempt {
	a := append([]Attempt(nil), r.History...)
	sort.SliceStable(a, func(i, j int) bool {
		return metrics.Better(r.Primary, a[i].Validation[r.Primary], a[j].Validation[r.Primary])
	})
	return a
}

/*
Release frees the best model
*/
func (r *Report) Release() {
	if r.Model != nil {
		r.Model.Release()
		r.Model = nil
	}
}

/*
Saver is a model which can be serialized
*/
type Saver interface {
	Save(io.Writer) error
}

/*
Export writes the model into output if the model can be serialized
*/
func Export(m Model, output iokit.Output) error {
	s, ok := m.(Saver)
	if !ok {
		return zorros.Errorf("model %T can not be serialized", m)
	}
	wh, err := output.Create()
	if err != nil {
		return zorros.Trace(err)
	}
	defer wh.End()
	if err = s.Save(wh); err != nil {
		return zorros.Trace(err)
	}
	if err = wh.Commit(); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

/*
LuckyRun runs the training cycle and throws any occurred error as a panic
*/
func (t Training) LuckyRun(ctx context.Context, r *preprocess.Result) *Report {
	report, err := t.Run(ctx, r)
	if err != nil {
		panic(zorros.Panic(err))
	}
	return report
}
