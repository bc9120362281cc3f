package trajectory

import (
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Flat stores a rectangular batch in one contiguous buffer.
type Flat struct {
	Data []float32
	Dims []int
}

// Tensor converts the buffer to a gomlx tensor of the same dimensions.
func (f *Flat) Tensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(f.Data, f.Dims...)
}

// Flatten2 packs a [rows][cols] matrix, checking every row has the same width.
func Flatten2(m [][]float32) (*Flat, error) {
	if len(m) == 0 {
		return nil, errors.New("empty matrix")
	}
	cols := len(m[0])
	data := make([]float32, 0, len(m)*cols)
	for i, row := range m {
		if len(row) != cols {
			return nil, errors.Errorf("inconsistent row width at %d: expected %d, got %d", i, cols, len(row))
		}
		data = append(data, row...)
	}
	return &Flat{Data: data, Dims: []int{len(m), cols}}, nil
}

// Flatten3 packs a [a][b][c] array, checking it is rectangular.
func Flatten3(x [][][]float32) (*Flat, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, errors.New("empty array")
	}
	d1, d2 := len(x[0]), len(x[0][0])
	data := make([]float32, 0, len(x)*d1*d2)
	for i := range x {
		if len(x[i]) != d1 {
			return nil, errors.Errorf("inconsistent dimension at [%d]: expected %d, got %d", i, d1, len(x[i]))
		}
		for j, row := range x[i] {
			if len(row) != d2 {
				return nil, errors.Errorf("inconsistent dimension at [%d][%d]: expected %d, got %d", i, j, d2, len(row))
			}
			data = append(data, row...)
		}
	}
	return &Flat{Data: data, Dims: []int{len(x), d1, d2}}, nil
}

// Scene is a batch of channels-first images, [scenes, channels, height, width].
type Scene struct {
	Data []float32
	Dims [4]int
}

// NewScene allocates a zero scene batch.
func NewScene(scenes, channels, height, width int) *Scene {
	return &Scene{
		Data: make([]float32, scenes*channels*height*width),
		Dims: [4]int{scenes, channels, height, width},
	}
}

// Validate checks the buffer matches the dimensions.
func (s *Scene) Validate() error {
	n := 1
	for i, d := range s.Dims {
		if d < 1 {
			return errors.Errorf("scene dimension %d must be >= 1, got %v", i, s.Dims)
		}
		n *= d
	}
	if len(s.Data) != n {
		return errors.Errorf("scene data has %d values, dims %v need %d", len(s.Data), s.Dims, n)
	}
	return nil
}

// Tensor converts the scene to a gomlx tensor.
func (s *Scene) Tensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(s.Data, s.Dims[:]...)
}

// GroupIDs assigns a group id to each of n agents from [start, end) ranges.
// Range g gets id g. With no ranges every agent is in group 0. Agents not
// covered by any range get a group of their own.
func GroupIDs(n int, groups [][2]int) ([]int32, error) {
	ids := make([]int32, n)
	if len(groups) == 0 {
		return ids, nil
	}
	type indexed struct {
		g          int
		start, end int
	}
	sorted := make([]indexed, len(groups))
	for g, r := range groups {
		sorted[g] = indexed{g: g, start: r[0], end: r[1]}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	for i := range ids {
		ids[i] = -1
	}
	prev := -1
	for _, r := range sorted {
		if r.start < 0 || r.end > n || r.start >= r.end {
			return nil, errors.Errorf("group %d range [%d, %d) invalid for %d agents", r.g, r.start, r.end, n)
		}
		if prev >= 0 && r.start < groups[prev][1] {
			return nil, errors.Errorf("group %d range [%d, %d) overlaps group %d", r.g, r.start, r.end, prev)
		}
		for i := r.start; i < r.end; i++ {
			ids[i] = int32(r.g)
		}
		prev = r.g
	}
	next := int32(len(groups))
	for i := range ids {
		if ids[i] < 0 {
			ids[i] = next
			next++
		}
	}
	return ids, nil
}
