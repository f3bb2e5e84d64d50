package preprocess

import (
	"go-ml.dev/pkg/automl/tables"
	"golang.org/x/xerrors"
)

/*
Result is encoded data ready to be converted into tensors
*/
type Result struct {
	*Params
	Train, Validation, Test []tables.Row
	Discarded               int // rows without target value
}

/*
Encode splits rows by stratified sampling, fits encoding on the train split
and encodes all three splits
*/
func Encode(t *tables.Table, target string, tt TargetType, ratios SplitRatios, seed int64) (*Result, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if !t.Has(target) {
		return nil, xerrors.Errorf("`%v`: %w", target, ErrUnknownColumn)
	}
	q := t.Filter(func(row tables.Row) bool { return !tables.IsMissing(row[target]) })
	if q.Len() == 0 {
		return nil, xerrors.Errorf("no rows with target `%v`: %w", target, ErrEmptyDataset)
	}
	info := InspectTarget(q.Col(target))
	if info.Distinct < 2 {
		return nil, xerrors.Errorf("`%v`: %w", target, ErrConstantTarget)
	}
	if !tt.Classification() && !info.Numeric {
		return nil, xerrors.Errorf("regression target `%v` is not numeric: %w", target, ErrInvalidTarget)
	}
	train, validation, test := Partition(q.Rows, Assign(q.Rows, target, tt, ratios, seed))
	p, encoded, err := fit(train, t.Columns, target, tt, seed)
	if err != nil {
		return nil, err
	}
	return &Result{
		Params:     p,
		Train:      encoded,
		Validation: p.Transform(validation),
		Test:       p.Transform(test),
		Discarded:  t.Len() - q.Len(),
	}, nil
}
