package metrics

import (
	"go-ml.dev/pkg/automl/fu"
	"go-ml.dev/pkg/automl/preprocess"
	"gonum.org/v1/gonum/mat"
	"math"
	"sort"
)

const epsilon = 1e-7

/*
sample holds predictions of rows having a valid label,
scores are values for regression or the positive class probability for binary
*/
type sample struct {
	y      []float64
	score  []float64
	argmax []int
}

func newSample(predictions mat.Matrix, labels []float64, tt preprocess.TargetType) *sample {
	rows, cols := predictions.Dims()
	n := fu.Mini(rows, len(labels))
	s := &sample{}
	row := make([]float64, cols)
	for i := 0; i < n; i++ {
		y := labels[i]
		if math.IsNaN(y) || (tt.Classification() && y < 0) {
			continue
		}
		s.y = append(s.y, y)
		if tt == preprocess.Multiclass {
			mat.Row(row, i, predictions)
			s.argmax = append(s.argmax, fu.Indmaxd(row))
		} else {
			s.score = append(s.score, predictions.At(i, 0))
		}
	}
	return s
}

func (s *sample) mse() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	return fu.Mse(s.score, s.y)
}

func (s *sample) mae() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	var c float64
	for i, y := range s.y {
		c += math.Abs(y - s.score[i])
	}
	return c / float64(len(s.y))
}

func (s *sample) mape() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	var c float64
	for i, y := range s.y {
		c += math.Abs(y-s.score[i]) / math.Max(math.Abs(y), epsilon)
	}
	return 100 * c / float64(len(s.y))
}

func (s *sample) r2() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	mean := fu.Mean(s.y)
	var res, tot float64
	for i, y := range s.y {
		res += (y - s.score[i]) * (y - s.score[i])
		tot += (y - mean) * (y - mean)
	}
	if tot == 0 {
		if res == 0 {
			return 1
		}
		return 0
	}
	return 1 - res/tot
}

func (s *sample) accuracy() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	hit := 0
	if s.argmax != nil {
		for i, y := range s.y {
			if int(y) == s.argmax[i] {
				hit++
			}
		}
	} else {
		for i, y := range s.y {
			if (s.score[i] > 0.5) == (y > 0.5) {
				hit++
			}
		}
	}
	return float64(hit) / float64(len(s.y))
}

type confusion struct {
	tp, fp, tn, fn int
}

// confusion counts outcomes where a score above threshold is predicted positive
func (s *sample) confusion(threshold float64) confusion {
	var c confusion
	for i, y := range s.y {
		positive := s.score[i] > threshold
		switch {
		case y > 0.5 && positive:
			c.tp++
		case y > 0.5:
			c.fn++
		case positive:
			c.fp++
		default:
			c.tn++
		}
	}
	return c
}

// sweep counts outcomes where a score reaching threshold is positive
func (s *sample) sweep(threshold float64) confusion {
	var c confusion
	for i, y := range s.y {
		positive := s.score[i] >= threshold
		switch {
		case y > 0.5 && positive:
			c.tp++
		case y > 0.5:
			c.fn++
		case positive:
			c.fp++
		default:
			c.tn++
		}
	}
	return c
}

func ratio(a, b int) float64 {
	if a+b == 0 {
		return 0
	}
	return float64(a) / float64(a+b)
}

func (c confusion) precision() float64 {
	return ratio(c.tp, c.fp)
}

func (c confusion) recall() float64 {
	return ratio(c.tp, c.fn)
}

func (c confusion) f1() float64 {
	p, r := c.precision(), c.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

type point struct{ x, y float64 }

func (s *sample) curve(f func(confusion) point) []point {
	pts := make([]point, Thresholds)
	for i := range pts {
		pts[i] = f(s.sweep(float64(i) / float64(Thresholds-1)))
	}
	return pts
}

func trapezoid(pts []point) float64 {
	var auc float64
	for i := 1; i < len(pts); i++ {
		auc += (pts[i].x - pts[i-1].x) * (pts[i].y + pts[i-1].y) / 2
	}
	return auc
}

func (s *sample) rocAuc() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	pts := s.curve(func(c confusion) point { return point{ratio(c.fp, c.tn), ratio(c.tp, c.fn)} })
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	return trapezoid(pts)
}

func (s *sample) prAuc() float64 {
	if len(s.y) == 0 {
		return math.NaN()
	}
	pts := s.curve(func(c confusion) point { return point{c.recall(), c.precision()} })
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y > pts[j].y
	})
	return trapezoid(pts)
}
