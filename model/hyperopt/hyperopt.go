/*
Package hyperopt implements the greedy hyper-parameter search driving repeated training attempts.

After every attempt the gap between train and validation scores decides the next
configuration: an overfitted model gets more dropout and then L1 penalty, otherwise
the first hidden layer grows. Regularization, width and learning rate move in one
direction only.
*/
package hyperopt

import (
	"go-ml.dev/pkg/zorros"
	"math"
	"sort"
	"strings"
)

// Search heuristic constants
const (
	MaxHiddenDim      = 512
	DropoutStep       = 0.1
	MaxDropout        = 0.5
	L1Dropout         = 0.3   // dropout rate since which L1 penalty is raised too
	L1Initial         = 0.001 // L1 penalty introduced when it was zero
	L1Growth          = 3
	EarlyStopFraction = 0.4 // learning rate halves if training stopped before this part of epochs
	OverfitMargin     = 0.01
)

/*
HiddenMode tells how the first hidden layer width is chosen
*/
type HiddenMode int

const (
	Auto HiddenMode = iota
	Manual
)

func (m HiddenMode) String() string {
	if m == Manual {
		return "manual"
	}
	return "auto"
}

func (m HiddenMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *HiddenMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "auto", "":
		*m = Auto
	case "manual":
		*m = Manual
	default:
		return zorros.Errorf("unknown hidden layer mode `%v`", string(b))
	}
	return nil
}

/*
Config is a set of hyper-parameters of one training attempt
*/
type Config struct {
	LearningRate  float64    `yaml:"learning_rate" json:"learning_rate"`
	L1Penalty     float64    `yaml:"l1_penalty" json:"l1_penalty"`
	DropoutRate   float64    `yaml:"dropout_rate" json:"dropout_rate"`
	BatchSize     int        `yaml:"batch_size" json:"batch_size"`
	Epochs        int        `yaml:"epochs" json:"epochs"`
	EarlyStopping bool       `yaml:"early_stopping" json:"early_stopping"`
	HiddenMode    HiddenMode `yaml:"hidden_mode" json:"hidden_mode"`
	HiddenDim     int        `yaml:"hidden_dim" json:"hidden_dim"`
	Seed          int64      `yaml:"seed" json:"seed"`
}

/*
Default hyper-parameters of the first attempt
*/
func Default() Config {
	return Config{
		LearningRate:  0.001,
		BatchSize:     32,
		Epochs:        50,
		EarlyStopping: true,
		HiddenMode:    Auto,
		HiddenDim:     64,
		Seed:          42,
	}
}

func (c Config) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return zorros.Errorf("learning rate must be positive")
	case c.L1Penalty < 0:
		return zorros.Errorf("l1 penalty must not be negative")
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return zorros.Errorf("dropout rate must be in [0,1)")
	case c.BatchSize <= 0:
		return zorros.Errorf("batch size must be positive")
	case c.Epochs <= 0:
		return zorros.Errorf("epochs must be positive")
	case c.HiddenMode == Manual && c.HiddenDim <= 0:
		return zorros.Errorf("hidden layer width must be positive")
	}
	return nil
}

/*
Params is a flat view of hyper-parameters used to override a configuration by names
*/
type Params map[string]float64

/*
Get value of the parameter by name if exists and dflt value otherwise
*/
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

func (p Params) Names() []string {
	r := make([]string, 0, len(p))
	for k := range p {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

var fields = map[string]func(*Config, float64){
	"learning_rate":  func(c *Config, v float64) { c.LearningRate = v },
	"l1_penalty":     func(c *Config, v float64) { c.L1Penalty = v },
	"dropout_rate":   func(c *Config, v float64) { c.DropoutRate = v },
	"batch_size":     func(c *Config, v float64) { c.BatchSize = int(v) },
	"epochs":         func(c *Config, v float64) { c.Epochs = int(v) },
	"early_stopping": func(c *Config, v float64) { c.EarlyStopping = v != 0 },
	"seed":           func(c *Config, v float64) { c.Seed = int64(v) },
	"hidden_dim": func(c *Config, v float64) {
		c.HiddenMode = Auto
		if v > 0 {
			c.HiddenMode, c.HiddenDim = Manual, int(v)
		}
	},
}

/*
Params returns hyper-parameters as a flat map, hidden_dim is 0 in automatic mode
*/
func (c Config) Params() Params {
	p := Params{
		"learning_rate":  c.LearningRate,
		"l1_penalty":     c.L1Penalty,
		"dropout_rate":   c.DropoutRate,
		"batch_size":     float64(c.BatchSize),
		"epochs":         float64(c.Epochs),
		"early_stopping": 0,
		"hidden_dim":     0,
		"seed":           float64(c.Seed),
	}
	if c.EarlyStopping {
		p["early_stopping"] = 1
	}
	if c.HiddenMode == Manual {
		p["hidden_dim"] = float64(c.HiddenDim)
	}
	return p
}

/*
With applies params over the configuration
*/
func (c Config) With(p Params) (Config, error) {
	for _, k := range p.Names() {
		f, ok := fields[k]
		if !ok {
			return c, zorros.Errorf("configuration does not have hyper-parameter `%v`", k)
		}
		f(&c, p[k])
	}
	return c, nil
}

/*
Outcome is what the search needs to know about a finished attempt
*/
type Outcome struct {
	Metric         string  // primary metric name
	LowerIsBetter  bool    // primary metric direction
	Train          float64 // train primary metric
	Validation     float64 // validation primary metric
	ValidationSize int
	EpochsTrained  int
	Width          int // first hidden layer width used by the attempt
}

/*
ThresholdFactor is a tolerance of validation score degradation, it gets closer to 1 for bigger validation sets
*/
func ThresholdFactor(validationSize int) float64 {
	n := math.Max(float64(validationSize), 1)
	return 1 - 0.25/math.Pow(n, 0.2)
}

/*
Overfitting reports validation score is worse than train score more than tolerated
*/
func (o Outcome) Overfitting() bool {
	f := ThresholdFactor(o.ValidationSize)
	if o.LowerIsBetter {
		return o.Validation > o.Train/f
	}
	return o.Validation < o.Train*f-OverfitMargin
}

/*
Decision describes what Adapt has changed
*/
type Decision struct {
	HalvedLearningRate bool
	Overfitting        bool
	RaisedL1           bool
	Widened            bool
}

/*
Adapt produces hyper-parameters of the next attempt
*/
func (c Config) Adapt(o Outcome) (Config, Decision) {
	var d Decision
	if c.EarlyStopping && float64(o.EpochsTrained) < EarlyStopFraction*float64(c.Epochs) {
		c.LearningRate /= 2
		d.HalvedLearningRate = true
	}
	if o.Overfitting() {
		d.Overfitting = true
		if c.DropoutRate < MaxDropout {
			c.DropoutRate = math.Min(math.Round((c.DropoutRate+DropoutStep)*100)/100, MaxDropout)
		}
		if c.DropoutRate >= L1Dropout {
			if c.L1Penalty == 0 {
				c.L1Penalty = L1Initial
			} else {
				c.L1Penalty *= L1Growth
			}
			d.RaisedL1 = true
		}
		return c, d
	}
	if c.HiddenMode == Auto && o.Width > 0 {
		c.HiddenMode = Manual
		c.HiddenDim = o.Width
	}
	if w := c.HiddenDim * 2; w <= MaxHiddenDim {
		c.HiddenDim = w
		d.Widened = true
	} else if c.HiddenDim < MaxHiddenDim {
		c.HiddenDim = MaxHiddenDim
		d.Widened = true
	}
	return c, d
}
