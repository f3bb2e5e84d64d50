package preprocess

import (
	"go-ml.dev/pkg/automl/tables"
	"math"
	"math/rand"
	"sort"
)

/*
Split is a subset a row is assigned to
*/
type Split int

const (
	TrainSplit Split = iota
	ValidationSplit
	TestSplit
)

func (s Split) String() string {
	switch s {
	case ValidationSplit:
		return "validation"
	case TestSplit:
		return "test"
	}
	return "train"
}

// rows with an invalid stratification value share this stratum
const unstratified = "\x00"

/*
Assign distributes rows between splits keeping the target distribution in every split.
The stratum of a row is its class label or, for regression, the decile bin of the target.
Rows are shuffled within a stratum by the seeded generator, so assignment is deterministic.
*/
func Assign(rows []tables.Row, target string, tt TargetType, ratios SplitRatios, seed int64) []Split {
	keys := strataKeys(rows, target, tt)
	strata := map[string][]int{}
	for i, k := range keys {
		strata[k] = append(strata[k], i)
	}
	names := make([]string, 0, len(strata))
	for k := range strata {
		names = append(names, k)
	}
	sort.Strings(names)

	rng := rand.New(rand.NewSource(seed))
	assignment := make([]Split, len(rows))
	for _, k := range names {
		idx := strata[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := len(idx)
		nt := int(math.Round(float64(n) * ratios.Train))
		nv := int(math.Round(float64(n) * ratios.Validation))
		if nt > n {
			nt = n
		}
		if nt+nv > n {
			nv = n - nt
		}
		for j, i := range idx {
			switch {
			case j < nt:
				assignment[i] = TrainSplit
			case j < nt+nv:
				assignment[i] = ValidationSplit
			default:
				assignment[i] = TestSplit
			}
		}
	}
	return assignment
}

/*
Partition selects rows of every split preserving the rows order
*/
func Partition(rows []tables.Row, assignment []Split) (train, validation, test []tables.Row) {
	for i, row := range rows {
		switch assignment[i] {
		case TrainSplit:
			train = append(train, row)
		case ValidationSplit:
			validation = append(validation, row)
		default:
			test = append(test, row)
		}
	}
	return
}

func strataKeys(rows []tables.Row, target string, tt TargetType) []string {
	keys := make([]string, len(rows))
	if tt.Classification() {
		for i, row := range rows {
			if v := row[target]; tables.IsMissing(v) {
				keys[i] = unstratified
			} else {
				keys[i] = tables.Key(v)
			}
		}
		return keys
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range rows {
		if y, ok := finite(row[target]); ok {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}
	for i, row := range rows {
		y, ok := finite(row[target])
		if !ok {
			keys[i] = unstratified
			continue
		}
		bin := 0
		if hi > lo {
			bin = int((y - lo) / (hi - lo) * RegressionBins)
			if bin >= RegressionBins {
				bin = RegressionBins - 1
			}
		}
		keys[i] = string(rune('a' + bin))
	}
	return keys
}

func finite(v interface{}) (float64, bool) {
	y, ok := tables.Number(v)
	return y, ok && !math.IsInf(y, 0)
}
