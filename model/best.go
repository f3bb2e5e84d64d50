package model

import (
	"go-ml.dev/pkg/automl/model/metrics"
	"math"
)

/*
best holds at most one live model, the best one seen so far by validation value of the metric.
A model offered to the slot is either kept or released right away.
*/
type best struct {
	metric    string
	model     Model
	iteration int // 1-based, 0 means empty
	score     float64
}

func (b *best) offer(m Model, iteration int, score float64) bool {
	if b.model != nil && !metrics.Better(b.metric, score, b.score) && !(math.IsNaN(b.score) && !math.IsNaN(score)) {
		m.Release()
		return false
	}
	if b.model != nil {
		b.model.Release()
	}
	b.model, b.iteration, b.score = m, iteration, score
	return true
}

// take moves the model out of the slot
func (b *best) take() Model {
	m := b.model
	b.model = nil
	return m
}
