package preprocess

import (
	"go-ml.dev/pkg/automl/tables"
	"sort"
	"strconv"
)

// Unseen is a class index of a label never observed in the train split
const Unseen = -1

/*
ClassMapping maps raw class labels observed in train to contiguous indices 0..k-1
*/
type ClassMapping struct {
	Labels []string // Labels[i] is the label of class index i
}

/*
NewClassMapping orders distinct labels ascending, numerically if every label is a number
*/
func NewClassMapping(labels []string) *ClassMapping {
	u := uniq(labels)
	sortLabels(u)
	return &ClassMapping{Labels: u}
}

func (m *ClassMapping) Len() int {
	return len(m.Labels)
}

/*
Index returns the class index of a raw value or Unseen
*/
func (m *ClassMapping) Index(v interface{}) int {
	if tables.IsMissing(v) {
		return Unseen
	}
	k := tables.Key(v)
	for i, l := range m.Labels {
		if l == k {
			return i
		}
	}
	return Unseen
}

func (m *ClassMapping) index() map[string]int {
	r := make(map[string]int, len(m.Labels))
	for i, l := range m.Labels {
		r[l] = i
	}
	return r
}

/*
TargetInfo summarizes target column values
*/
type TargetInfo struct {
	Missing  int // rows without target value, they are discarded before training
	Distinct int // distinct non-missing values
	Numeric  bool
}

/*
InspectTarget counts missing and distinct values of the target column
*/
func InspectTarget(values []interface{}) TargetInfo {
	info := TargetInfo{Numeric: true}
	seen := map[string]bool{}
	for _, v := range values {
		if tables.IsMissing(v) {
			info.Missing++
			continue
		}
		if _, ok := tables.Number(v); !ok {
			info.Numeric = false
		}
		seen[tables.Key(v)] = true
	}
	info.Distinct = len(seen)
	if info.Distinct == 0 {
		info.Numeric = false
	}
	return info
}

/*
DetectTargetType suggests a task kind for the target values.
Numbers with two distinct values are binary, with 3 to 10 are multiclass and regression otherwise.
Labels are binary when there are two of them and multiclass otherwise.
*/
func DetectTargetType(values []interface{}) TargetType {
	info := InspectTarget(values)
	if info.Numeric {
		switch {
		case info.Distinct == 2:
			return Binary
		case info.Distinct >= 3 && info.Distinct <= 10:
			return Multiclass
		}
		return Regression
	}
	if info.Distinct == 2 {
		return Binary
	}
	return Multiclass
}

func uniq(a []string) []string {
	seen := map[string]bool{}
	r := make([]string, 0, len(a))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			r = append(r, s)
		}
	}
	return r
}

func sortLabels(a []string) {
	nums := make([]float64, len(a))
	for i, s := range a {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			sort.Strings(a)
			return
		}
		nums[i] = f
	}
	sort.Sort(byNumber{a, nums})
}

type byNumber struct {
	s []string
	f []float64
}

func (b byNumber) Len() int           { return len(b.s) }
func (b byNumber) Less(i, j int) bool { return b.f[i] < b.f[j] }
func (b byNumber) Swap(i, j int) {
	b.s[i], b.s[j] = b.s[j], b.s[i]
	b.f[i], b.f[j] = b.f[j], b.f[i]
}
