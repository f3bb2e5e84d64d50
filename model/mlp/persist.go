package mlp

import (
	"encoding/gob"
	"go-ml.dev/pkg/zorros"
	"gonum.org/v1/gonum/mat"
	"io"
)

type layerSnapshot struct {
	In, Out int
	W, B    []float64
}

type snapshot struct {
	Architecture Architecture
	Layers       []layerSnapshot // hidden layers then output
}

/*
Save writes network architecture and weights
*/
func (n *Network) Save(w io.Writer) error {
	if n.Released() {
		return zorros.Errorf("network is released")
	}
	s := snapshot{Architecture: n.Architecture}
	for _, l := range n.dense() {
		r, c := l.W.Dims()
		s.Layers = append(s.Layers, layerSnapshot{In: r, Out: c, W: mat.DenseCopyOf(l.W).RawMatrix().Data, B: l.B})
	}
	if err := gob.NewEncoder(w).Encode(&s); err != nil {
		return zorros.Wrapf(err, "failed to encode network: %v", err.Error())
	}
	return nil
}

/*
Load reads network written by Save
*/
func Load(r io.Reader) (*Network, error) {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, zorros.Wrapf(err, "failed to decode network: %v", err.Error())
	}
	if len(s.Layers) != len(s.Architecture.Hidden)+1 {
		return nil, zorros.Errorf("network has %d layers but architecture needs %d", len(s.Layers), len(s.Architecture.Hidden)+1)
	}
	n := &Network{Architecture: s.Architecture}
	for i, l := range s.Layers {
		if l.In <= 0 || l.Out <= 0 || len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return nil, zorros.Errorf("layer %d weights are malformed", i)
		}
		d := &dense{W: mat.NewDense(l.In, l.Out, l.W), B: l.B}
		if i < len(s.Architecture.Hidden) {
			n.layers = append(n.layers, d)
		} else {
			n.out = d
		}
	}
	return n, nil
}
