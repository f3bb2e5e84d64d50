/*
Package preprocess turns raw table rows into a clean numeric representation.

Encoding parameters (categories, smoothed target statistics, scaler and class
mapping) are fitted on the train split only and applied to validation and test
rows by lookup.
*/
package preprocess

import (
	"go-ml.dev/pkg/zorros"
	"golang.org/x/xerrors"
	"math"
	"strings"
)

var (
	ErrEmptyDataset   = xerrors.New("dataset is empty")
	ErrUnknownColumn  = xerrors.New("unknown target column")
	ErrConstantTarget = xerrors.New("target column has a single value")
	ErrInvalidTarget  = xerrors.New("invalid target value")
	ErrBadRatios      = xerrors.New("split ratios must be non-negative and sum to 1")
)

// Heuristic constants of the encoder
const (
	UnknownCategory  = "Unknown"
	GranularityShare = 0.1 // a column is too sparse if every category is rarer than this
	OneHotMargin     = 5   // one-hot while distinct categories < classes + OneHotMargin
	RegressionBins   = 10  // stratification bins for a continuous target
	RegressionProxyK = 2   // classes count used for regression when choosing encoding
)

/*
TargetType is a kind of prediction task
*/
type TargetType int

const (
	Regression TargetType = iota
	Binary
	Multiclass
)

func (t TargetType) String() string {
	switch t {
	case Binary:
		return "binary"
	case Multiclass:
		return "multiclass"
	default:
		return "regression"
	}
}

/*
Classification reports the target is a class label
*/
func (t TargetType) Classification() bool {
	return t == Binary || t == Multiclass
}

/*
ParseTargetType parses target type name
*/
func ParseTargetType(s string) (TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regression":
		return Regression, nil
	case "binary":
		return Binary, nil
	case "multiclass":
		return Multiclass, nil
	}
	return Regression, zorros.Errorf("unknown target type `%v`", s)
}

func (t TargetType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TargetType) UnmarshalText(b []byte) (err error) {
	*t, err = ParseTargetType(string(b))
	return
}

/*
SplitRatios are fractions of rows going to train, validation and test splits
*/
type SplitRatios struct {
	Train      float64 `yaml:"train"`
	Validation float64 `yaml:"validation"`
	Test       float64 `yaml:"test"`
}

/*
DefaultRatios is 70% train, 20% validation and 10% test
*/
func DefaultRatios() SplitRatios {
	return SplitRatios{Train: 0.7, Validation: 0.2, Test: 0.1}
}

func (r SplitRatios) Validate() error {
	if r.Train <= 0 || r.Validation < 0 || r.Test < 0 ||
		math.Abs(r.Train+r.Validation+r.Test-1) > 1e-6 {
		return xerrors.Errorf("%v/%v/%v: %w", r.Train, r.Validation, r.Test, ErrBadRatios)
	}
	return nil
}
