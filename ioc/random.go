package ioc

import (
	"math/rand"

	"github.com/Noofbiz/desire/params"
	"github.com/Noofbiz/desire/trajectory"
)

// RandomInputs draws normally distributed inputs for a batch of agents
// sharing one scene of the given size. It is used for smoke tests.
func RandomInputs(rng *rand.Rand, p params.IOCParams, batch, channels, height, width int) Inputs {
	normal := func(rows, cols int) [][]float32 {
		m := make([][]float32, rows)
		for i := range m {
			m[i] = make([]float32, cols)
			for j := range m[i] {
				m[i][j] = float32(rng.NormFloat64())
			}
		}
		return m
	}
	ypred := make([][][]float32, batch)
	for b := range ypred {
		ypred[b] = normal(p.NumDims, p.NumLayers)
	}
	scene := trajectory.NewScene(1, channels, height, width)
	for i := range scene.Data {
		scene.Data[i] = rng.Float32()
	}
	return Inputs{
		YPred:   ypred,
		Hidden:  normal(batch, p.GRU.HiddenSize),
		Scene:   scene,
		Start:   normal(batch, p.NumDims),
		LastObs: normal(batch, p.NumDims),
	}
}
