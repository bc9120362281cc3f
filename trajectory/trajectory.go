// Package trajectory holds plain-Go helpers for trajectory batches: the
// relative/absolute conversions, group boundaries and packing of nested
// slices into flat buffers and gomlx tensors.
//
// Trajectories are laid out as [agent][dim][step], matching the IOC model's
// [batch, num_dims, num_layers] tensors.
package trajectory

// ToAbsolute reconstructs absolute positions from relative steps:
//
//	abs[b][d][t] = start[b][d] + lastObs[b][d] + sum(rel[b][d][0..t])
//
// lastObs is the last observed position relative to start and may be nil.
func ToAbsolute(start, lastObs [][]float32, rel [][][]float32) [][][]float32 {
	abs := make([][][]float32, len(rel))
	for b := range rel {
		abs[b] = make([][]float32, len(rel[b]))
		for d := range rel[b] {
			acc := start[b][d]
			if lastObs != nil {
				acc += lastObs[b][d]
			}
			row := make([]float32, len(rel[b][d]))
			for t, step := range rel[b][d] {
				acc += step
				row[t] = acc
			}
			abs[b][d] = row
		}
	}
	return abs
}

// ToRelative is the inverse of ToAbsolute: given the position each
// trajectory departs from, it returns per-step displacements.
func ToRelative(origin [][]float32, abs [][][]float32) [][][]float32 {
	rel := make([][][]float32, len(abs))
	for b := range abs {
		rel[b] = make([][]float32, len(abs[b]))
		for d := range abs[b] {
			prev := origin[b][d]
			row := make([]float32, len(abs[b][d]))
			for t, p := range abs[b][d] {
				row[t] = p - prev
				prev = p
			}
			rel[b][d] = row
		}
	}
	return rel
}

// Zeros returns a [rows][cols] matrix of zeros.
func Zeros(rows, cols int) [][]float32 {
	m := make([][]float32, rows)
	for i := range m {
		m[i] = make([]float32, cols)
	}
	return m
}
