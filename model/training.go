package model

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"go-ml.dev/pkg/zorros/zlog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoResult     = xerrors.New("no training attempt completed")
	ErrCycleStarted = xerrors.New("training cycle is already started")
	ErrCycleIdle    = xerrors.New("training cycle is not started")
)

const (
	DefaultMinIterations   = 10
	DefaultMaxTrainingTime = 30 * time.Minute
)

/*
Training is a configuration of the search
*/
type Training struct {
	PrimaryMetric    string        // model selection metric, accuracy or rmse by default
	SecondaryMetrics []string      // calculated for the best model only, all applicable metrics if nil
	MinIterations    int           // iterations done regardless of time
	MaxTrainingTime  time.Duration // time after which no new iteration starts
	Hyperparameters  hyperopt.Config
	Trainer          Trainer // the residual perceptron if nil

	OnProgress  func(epoch, total int)
	OnIteration func(history []Attempt, best int)

	ModelFile iokit.Output // file to store the best model
	Logger    *zap.Logger
	Verbose   func(string) // receives one line summary of every iteration
}

/*
State is a cycle lifecycle state
*/
type State int

const (
	Idle State = iota
	Running
	Stopping
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Finished:
		return "finished"
	}
	return "idle"
}

/*
Cycle is one run of the search over a dataset
*/
type Cycle struct {
	ID uuid.UUID

	training  Training
	primary   string
	secondary []string
	data      *Dataset
	budget    *Budget
	log       *zap.Logger

	mu     sync.Mutex
	state  State
	done   chan struct{}
	report *Report
	err    error
}

/*
NewCycle prepares tensors of the encoded data and checks the configuration
*/
func (t Training) NewCycle(r *preprocess.Result) (*Cycle, error) {
	if r == nil || len(r.Train) == 0 {
		return nil, xerrors.Errorf("nothing to train on: %w", preprocess.ErrEmptyDataset)
	}
	if r.Params == nil || len(r.Features) == 0 {
		return nil, xerrors.Errorf("no feature columns left after encoding: %w", preprocess.ErrEmptyDataset)
	}
	if err := t.Hyperparameters.Validate(); err != nil {
		return nil, zorros.Trace(err)
	}
	primary := strings.ToLower(t.PrimaryMetric)
	if primary == "" {
		primary = metrics.DefaultPrimary(r.TargetType)
	}
	if !metrics.Applicable(primary, r.TargetType) {
		return nil, zorros.Errorf("metric `%v` can not be primary for %v target", t.PrimaryMetric, r.TargetType)
	}
	secondary := t.SecondaryMetrics
	if secondary == nil {
		secondary = metrics.Names(r.TargetType)
	}
	d := NewDataset(r)
	if t.Trainer == nil {
		t.Trainer = MLP{Task: d.Task, NumClasses: d.NumClasses}
	}
	id := uuid.New()
	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Cycle{
		ID:        id,
		training:  t,
		primary:   primary,
		secondary: secondary,
		data:      d,
		budget:    NewBudget(t.MinIterations, t.MaxTrainingTime),
		log:       log.With(zap.String("cycle", id.String())),
		done:      make(chan struct{}),
	}, nil
}

/*
Run trains the encoded data and waits for the result
*/
func (t Training) Run(ctx context.Context, r *preprocess.Result) (*Report, error) {
	c, err := t.NewCycle(r)
	if err != nil {
		return nil, err
	}
	if err = c.Start(ctx); err != nil {
		return nil, err
	}
	return c.Wait()
}

/*
Start launches the search loop. The context aborts the search between epochs
and it's treated as a training failure.
*/
func (c *Cycle) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrCycleStarted
	}
	if c.budget.Canceled() {
		c.state = Finished
		c.err = ErrNoResult
		c.data.Release()
		close(c.done)
		return nil
	}
	c.state = Running
	c.budget.Begin()
	c.log.Info("training cycle started",
		zap.Int("features", len(c.data.Features)),
		zap.Int("train", c.data.Train.Len()),
		zap.Int("validation", c.data.Validation.Len()),
		zap.Int("test", c.data.Test.Len()),
		zap.String("target", c.data.Task.String()),
		zap.String("metric", c.primary))
	go c.run(ctx)
	return nil
}

/*
Stop requests the search to stop after the current iteration, it can be called many times
*/
func (c *Cycle) Stop() {
	c.budget.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		c.state = Stopping
		c.log.Info("training cycle is stopping")
	}
}

func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

/*
Dataset returns tensors of the cycle, they are released when the cycle finishes
*/
func (c *Cycle) Dataset() *Dataset {
	return c.data
}

/*
Done is closed when the cycle is finished
*/
func (c *Cycle) Done() <-chan struct{} {
	return c.done
}

/*
Wait blocks until the cycle finishes. A cycle failed after some successful attempts
returns the best report together with the error.
*/
func (c *Cycle) Wait() (*Report, error) {
	if c.State() == Idle {
		return nil, ErrCycleIdle
	}
	<-c.done
	return c.report, c.err
}

func (c *Cycle) run(ctx context.Context) {
	defer close(c.done)
	t := c.training
	d := c.data
	hp := t.Hyperparameters
	slot := &best{metric: c.primary}
	history := []Attempt{}
	var failure error

	// the first iteration is committed by Start, a stop request lets it finish
	for i := 0; i == 0 || c.budget.Continue(i); i++ {
		a, err := c.attempt(ctx, i+1, hp, slot)
		if err != nil {
			failure = err
			c.log.Error("training attempt failed", zap.Int("iteration", i+1), zap.Error(err))
			break
		}
		history = append(history, a)
		next, decision := hp.Adapt(hyperopt.Outcome{
			Metric:         c.primary,
			LowerIsBetter:  metrics.DirectionOf(c.primary) == metrics.LowerIsBetter,
			Train:          a.Train[c.primary],
			Validation:     a.Validation[c.primary],
			ValidationSize: d.Validation.Len(),
			EpochsTrained:  a.EpochsTrained,
			Width:          a.Width,
		})
		c.log.Debug("hyper-parameters adapted",
			zap.Int("iteration", i+1),
			zap.Bool("overfitting", decision.Overfitting),
			zap.Bool("halvedLearningRate", decision.HalvedLearningRate),
			zap.Bool("raisedL1", decision.RaisedL1),
			zap.Bool("widened", decision.Widened),
			zap.Float64("learningRate", next.LearningRate),
			zap.Float64("dropoutRate", next.DropoutRate),
			zap.Float64("l1Penalty", next.L1Penalty),
			zap.Int("hiddenDim", next.HiddenDim))
		if t.OnIteration != nil {
			t.OnIteration(append([]Attempt(nil), history...), slot.iteration)
		}
		hp = next
		runtime.Gosched()
	}

	c.finish(history, slot, failure)
}

func (c *Cycle) attempt(ctx context.Context, iteration int, hp hyperopt.Config, slot *best) (Attempt, error) {
	t := c.training
	d := c.data
	f, err := t.Trainer.Fit(ctx, d.Train, d.Validation, hp, t.OnProgress)
	if err != nil {
		return Attempt{}, zorros.Wrapf(err, "iteration %d training failed: %v", iteration, err.Error())
	}
	a := Attempt{Iteration: iteration, Hyperparameters: hp, EpochsTrained: f.Epochs, Width: f.Width}
	names := []string{c.primary}
	if a.Train, err = evaluate(f.Model, d.Train, d.Task, names); err == nil {
		a.Validation, err = evaluate(f.Model, d.Validation, d.Task, names)
	}
	if err != nil {
		f.Model.Release()
		return Attempt{}, zorros.Wrapf(err, "iteration %d evaluation failed: %v", iteration, err.Error())
	}
	if slot.offer(f.Model, iteration, a.Validation[c.primary]) {
		c.log.Info("new best model", zap.Int("iteration", iteration), zap.Float64(c.primary, a.Validation[c.primary]))
	}
	c.log.Info("training attempt completed",
		zap.Int("iteration", iteration),
		zap.Int("epochs", f.Epochs),
		zap.Int("hiddenDim", f.Width),
		zap.Float64("train", a.Train[c.primary]),
		zap.Float64("validation", a.Validation[c.primary]))
	if t.Verbose != nil {
		t.Verbose(fmt.Sprintf("[%3d] epochs: %d, %v: %.5f/%.5f",
			iteration, f.Epochs, c.primary, a.Train[c.primary], a.Validation[c.primary]))
	}
	return a, nil
}

func (c *Cycle) finish(history []Attempt, slot *best, failure error) {
	defer c.data.Release()
	elapsed := c.budget.Elapsed()
	defer func() {
		c.mu.Lock()
		c.state = Finished
		c.mu.Unlock()
	}()

	if slot.model == nil {
		c.log.Warn("training cycle finished without result", zap.Int("iterations", len(history)))
		if failure != nil {
			c.err = xerrors.Errorf("%v: %w", failure.Error(), ErrNoResult)
		} else {
			c.err = ErrNoResult
		}
		return
	}

	r := &Report{
		ID:       c.ID,
		History:  history,
		TheBest:  slot.iteration,
		Primary:  c.primary,
		Elapsed:  elapsed,
		Features: c.data.Features,
	}
	r.Model = slot.take()
	names := []string{c.primary}
	for _, n := range c.secondary {
		if n = strings.ToLower(n); n != c.primary {
			names = append(names, n)
		}
	}
	var g errgroup.Group
	for _, x := range []struct {
		values *metrics.Values
		data   mlp.Data
	}{{&r.Train, c.data.Train}, {&r.Validation, c.data.Validation}, {&r.Test, c.data.Test}} {
		x := x
		g.Go(func() (err error) {
			*x.values, err = evaluate(r.Model, x.data, c.data.Task, names)
			return
		})
	}
	if err := g.Wait(); err != nil && failure == nil {
		failure = zorros.Wrapf(err, "final evaluation failed: %v", err.Error())
	}
	if c.training.ModelFile != nil && failure == nil {
		if err := Export(r.Model, c.training.ModelFile); err != nil {
			failure = err
		}
	}
	c.log.Info("training cycle finished",
		zap.Int("iterations", len(history)),
		zap.Int("best", r.TheBest),
		zap.Duration("elapsed", elapsed),
		zap.String("test", r.Test.String()))
	c.report, c.err = r, failure
}

/*
evaluate predicts the data and scores predictions, empty data has NaN metrics
*/
func evaluate(m Model, d mlp.Data, tt preprocess.TargetType, names []string) (metrics.Values, error) {
	if d.Len() == 0 {
		v := metrics.Values{}
		for _, n := range names {
			if metrics.Applicable(n, tt) {
				v[strings.ToLower(n)] = math.NaN()
			} else {
				zlog.Warning(fmt.Sprintf("metric `%v` is ignored", n))
			}
		}
		return v, nil
	}
	p, err := m.Predict(d.X)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	return metrics.Score(p, d.Y, tt, names), nil
}
