package fu

import "math"

func Mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var c float64
	for _, x := range a {
		c += x
	}
	return c / float64(len(a))
}

/*
PopStd is the population standard deviation of a around mean
*/
func PopStd(a []float64, mean float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var c float64
	for _, x := range a {
		q := x - mean
		c += q * q
	}
	return math.Sqrt(c / float64(len(a)))
}

func Mse(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var c float64
	for i, x := range a {
		q := x - b[i]
		c += q * q
	}
	return c / float64(len(a))
}

/*
Indmaxd returns index of the maximal value, the first one if there are several
*/
func Indmaxd(a []float64) int {
	j := 0
	for i, x := range a {
		if x > a[j] {
			j = i
		}
	}
	return j
}
