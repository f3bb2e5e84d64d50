package preprocess

import (
	"go-ml.dev/pkg/automl/fu"
	"go-ml.dev/pkg/automl/tables"
	"golang.org/x/xerrors"
	"math"
	"math/rand"
	"sort"
)

/*
Encoding is a way a categorical column is turned into numbers
*/
type Encoding int

const (
	OneHot Encoding = iota
	TargetEncoding
)

func (e Encoding) String() string {
	if e == TargetEncoding {
		return "target-encoded"
	}
	return "one-hot"
}

/*
Categorical is a fitted encoding of one categorical column
*/
type Categorical struct {
	Column     string
	Encoding   Encoding
	Categories []string // distinct train categories, the last one is the one-hot reference
	Outputs    []string // encoded column names
	// target encoding only, one map and one prior per output
	Values []map[string]float64
	Prior  []float64
}

/*
Moments are the train mean and population standard deviation of a numeric column
*/
type Moments struct {
	Mean float64
	Std  float64
}

/*
Scaler standardizes originally numeric columns
*/
type Scaler map[string]Moments

/*
Apply z-scores the value of column c, a zero deviation only centers the value
*/
func (s Scaler) Apply(c string, x float64) float64 {
	m, ok := s[c]
	if !ok {
		return x
	}
	if m.Std == 0 || math.IsNaN(m.Std) {
		return x - m.Mean
	}
	return (x - m.Mean) / m.Std
}

/*
Params are encoding parameters fitted on the train split
*/
type Params struct {
	Target      string
	TargetType  TargetType
	Features    []string // encoded feature columns in the output order
	Numeric     []string // originally numeric columns
	Categorical []Categorical
	Dropped     []string           // constant, too granular or empty columns
	Imputation  map[string]float64 // train mean of every numeric column
	Scaler      Scaler
	Classes     *ClassMapping // nil for regression
}

/*
NumClasses is a count of target classes, 0 for regression
*/
func (p *Params) NumClasses() int {
	if p.Classes == nil {
		return 0
	}
	return p.Classes.Len()
}

type column struct {
	name string
	kind tables.Kind
	cat  int // index in Params.Categorical
}

/*
Fit fits encoding parameters on train rows only
*/
func Fit(train []tables.Row, columns []string, target string, tt TargetType, seed int64) (*Params, error) {
	p, _, err := fit(train, columns, target, tt, seed)
	return p, err
}

func fit(train []tables.Row, columns []string, target string, tt TargetType, seed int64) (*Params, []tables.Row, error) {
	if len(train) == 0 {
		return nil, nil, xerrors.Errorf("train split: %w", ErrEmptyDataset)
	}
	p := &Params{
		Target:     target,
		TargetType: tt,
		Imputation: map[string]float64{},
		Scaler:     Scaler{},
	}
	if distinct(train, target) < 2 {
		return nil, nil, xerrors.Errorf("train split of `%v`: %w", target, ErrConstantTarget)
	}

	y := make([]float64, len(train))
	classes := make([]int, len(train))
	if tt.Classification() {
		labels := make([]string, 0, len(train))
		for _, row := range train {
			labels = append(labels, tables.Key(row[target]))
		}
		p.Classes = NewClassMapping(labels)
		if tt == Binary && p.Classes.Len() != 2 {
			return nil, nil, xerrors.Errorf("binary target `%v` has %d classes: %w", target, p.Classes.Len(), ErrInvalidTarget)
		}
		index := p.Classes.index()
		for i, row := range train {
			classes[i] = index[tables.Key(row[target])]
			y[i] = float64(classes[i])
		}
	} else {
		for i, row := range train {
			v, ok := tables.Number(row[target])
			if !ok {
				return nil, nil, xerrors.Errorf("regression target `%v` = %v: %w", target, row[target], ErrInvalidTarget)
			}
			y[i] = v
		}
	}

	k := RegressionProxyK
	if p.Classes != nil {
		k = p.Classes.Len()
	}
	var kept []column
	for _, c := range columns {
		if c == target {
			continue
		}
		if distinct(train, c) < 2 {
			p.Dropped = append(p.Dropped, c)
			continue
		}
		values := make([]interface{}, len(train))
		for i, row := range train {
			values[i] = row[c]
		}
		switch tables.Classify(values) {
		case tables.Numeric:
			p.Numeric = append(p.Numeric, c)
			kept = append(kept, column{name: c, kind: tables.Numeric})
		case tables.Categorical:
			cats := categories(values)
			if granular(cats, len(train)) {
				p.Dropped = append(p.Dropped, c)
				continue
			}
			kept = append(kept, column{name: c, kind: tables.Categorical, cat: len(p.Categorical)})
			p.Categorical = append(p.Categorical, newCategorical(c, cats, k, tt, p.Classes))
		default:
			p.Dropped = append(p.Dropped, c)
		}
	}

	for _, c := range kept {
		if c.kind == tables.Numeric {
			p.Features = append(p.Features, c.name)
		} else {
			p.Features = append(p.Features, p.Categorical[c.cat].Outputs...)
		}
	}

	rows := make([]tables.Row, len(train))
	for i := range rows {
		rows[i] = make(tables.Row, len(p.Features)+1)
		rows[i][target] = y[i]
	}

	for _, c := range p.Numeric {
		var valid []float64
		for _, row := range train {
			if x, ok := tables.Number(row[c]); ok {
				valid = append(valid, x)
			}
		}
		mean := fu.Mean(valid)
		p.Imputation[c] = mean
		xs := make([]float64, len(train))
		for i, row := range train {
			xs[i] = p.impute(c, row[c])
		}
		m := Moments{Mean: fu.Mean(xs)}
		m.Std = fu.PopStd(xs, m.Mean)
		p.Scaler[c] = m
		for i, x := range xs {
			rows[i][c] = p.Scaler.Apply(c, x)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for j := range p.Categorical {
		e := &p.Categorical[j]
		if e.Encoding == OneHot {
			for i, row := range train {
				e.oneHot(category(row[e.Column]), rows[i])
			}
			continue
		}
		order := rng.Perm(len(train))
		for o := range e.Outputs {
			obs := y
			if tt.Classification() {
				obs = indicator(classes, o+1)
			}
			e.Prior[o] = fu.Mean(obs)
			e.Values[o] = smoothedMeans(train, order, e.Column, e.Outputs[o], obs, e.Prior[o], rows)
		}
	}
	return p, rows, nil
}

/*
Transform encodes validation or test rows with the fitted parameters
*/
func (p *Params) Transform(rows []tables.Row) []tables.Row {
	var index map[string]int
	if p.Classes != nil {
		index = p.Classes.index()
	}
	r := make([]tables.Row, len(rows))
	for i, row := range rows {
		q := make(tables.Row, len(p.Features)+1)
		if index != nil {
			q[p.Target] = float64(Unseen)
			if v := row[p.Target]; !tables.IsMissing(v) {
				if c, ok := index[tables.Key(v)]; ok {
					q[p.Target] = float64(c)
				}
			}
		} else if v, ok := tables.Number(row[p.Target]); ok {
			q[p.Target] = v
		} else {
			q[p.Target] = math.NaN()
		}
		for _, c := range p.Numeric {
			q[c] = p.Scaler.Apply(c, p.impute(c, row[c]))
		}
		for j := range p.Categorical {
			e := &p.Categorical[j]
			cat := category(row[e.Column])
			if e.Encoding == OneHot {
				e.oneHot(cat, q)
				continue
			}
			for o, name := range e.Outputs {
				if v, ok := e.Values[o][cat]; ok {
					q[name] = v
				} else {
					q[name] = e.Prior[o]
				}
			}
		}
		r[i] = q
	}
	return r
}

func (p *Params) impute(c string, v interface{}) float64 {
	if x, ok := tables.Number(v); ok {
		return x
	}
	return p.Imputation[c]
}

func newCategorical(c string, counts map[string]int, k int, tt TargetType, classes *ClassMapping) Categorical {
	cats := make([]string, 0, len(counts))
	for s := range counts {
		cats = append(cats, s)
	}
	sort.Strings(cats)
	e := Categorical{Column: c, Categories: cats}
	if len(cats) < k+OneHotMargin {
		e.Encoding = OneHot
		for _, s := range cats[:len(cats)-1] {
			e.Outputs = append(e.Outputs, c+"="+s)
		}
		return e
	}
	e.Encoding = TargetEncoding
	if tt.Classification() {
		for _, l := range classes.Labels[1:] {
			e.Outputs = append(e.Outputs, c+"_encoded_"+l)
		}
	} else {
		e.Outputs = []string{c + "_encoded"}
	}
	e.Values = make([]map[string]float64, len(e.Outputs))
	e.Prior = make([]float64, len(e.Outputs))
	return e
}

func (e *Categorical) oneHot(cat string, row tables.Row) {
	for i, name := range e.Outputs {
		if e.Categories[i] == cat {
			row[name] = 1.0
		} else {
			row[name] = 0.0
		}
	}
}

/*
smoothedMeans runs the shrinkage recurrence (sum + y + prior) / (count + 2) over train rows
in the given order writing the running value into encoded rows and returns final values
*/
func smoothedMeans(train []tables.Row, order []int, c, out string, obs []float64, prior float64, rows []tables.Row) map[string]float64 {
	type state struct {
		sum   float64
		count int
	}
	states := map[string]*state{}
	values := map[string]float64{}
	for _, i := range order {
		cat := category(train[i][c])
		s, ok := states[cat]
		if !ok {
			s = &state{}
			states[cat] = s
			values[cat] = prior
		}
		s.count++
		v := (s.sum + obs[i] + prior) / float64(s.count+2)
		s.sum += obs[i]
		values[cat] = v
		rows[i][out] = v
	}
	return values
}

func indicator(classes []int, c int) []float64 {
	r := make([]float64, len(classes))
	for i, x := range classes {
		if x == c {
			r[i] = 1
		}
	}
	return r
}

func category(v interface{}) string {
	if tables.IsMissing(v) {
		return UnknownCategory
	}
	return tables.Key(v)
}

func categories(values []interface{}) map[string]int {
	r := map[string]int{}
	for _, v := range values {
		r[category(v)]++
	}
	return r
}

func granular(counts map[string]int, total int) bool {
	for _, n := range counts {
		if float64(n)/float64(total) >= GranularityShare {
			return false
		}
	}
	return true
}

func distinct(rows []tables.Row, c string) int {
	seen := map[string]bool{}
	for _, row := range rows {
		v := row[c]
		if tables.IsMissing(v) {
			seen[unstratified] = true
		} else {
			seen[tables.Key(v)] = true
		}
	}
	return len(seen)
}
