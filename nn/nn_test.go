package nn

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/desire/params"
)

func newBackend(t *testing.T) backends.Backend {
	t.Helper()
	backend, err := simplego.New("")
	require.NoError(t, err)
	return backend
}

func TestFCOutputShape(t *testing.T) {
	backend := newBackend(t)
	ctx := context.New()
	p := params.FCParams{Sizes: []int{5, 3}, Activation: "relu"}
	out := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		return FC(ctx.In("scoring"), x, p)
	}, [][]float32{{1, 2, 3, 4}, {0, 0, 0, 0}})
	require.Equal(t, []int{2, 3}, out.Shape().Dimensions)
}

func TestActivation(t *testing.T) {
	backend := newBackend(t)
	input := []float32{-2, 0, 3}
	for _, tc := range []struct {
		name string
		want []float32
	}{
		{"relu", []float32{0, 0, 3}},
		{"none", []float32{-2, 0, 3}},
		{"tanh", []float32{float32(math.Tanh(-2)), 0, float32(math.Tanh(3))}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := MustExecOnce(backend, func(x *Node) *Node { return Activation(tc.name, x) }, input)
			require.InDeltaSlice(t, tc.want, out.Value().([]float32), 1e-5)
		})
	}
}

func TestGRUCellBoundedAndShaped(t *testing.T) {
	backend := newBackend(t)
	ctx := context.New()
	ctx.RngStateFromSeed(7)
	x := [][]float32{{1, -1, 0.5}, {3, 2, -4}}
	h := [][]float32{{0.9, -0.9, 0, 0.5}, {-1, 1, 0.2, -0.3}}
	out := context.MustExecOnce(backend, ctx, func(ctx *context.Context, x, h *Node) *Node {
		return GRUCell(ctx.In("gru"), x, h, 4)
	}, x, h)
	require.Equal(t, []int{2, 4}, out.Shape().Dimensions)
	// With |h| <= 1 the update is a convex mix of tanh(.) and h.
	for _, row := range out.Value().([][]float32) {
		for _, v := range row {
			require.LessOrEqual(t, math.Abs(float64(v)), 1.0)
		}
	}
}

func TestGRUCellRejectsWrongHiddenSize(t *testing.T) {
	backend := newBackend(t)
	ctx := context.New()
	require.Panics(t, func() {
		context.MustExecOnce(backend, ctx, func(ctx *context.Context, x, h *Node) *Node {
			return GRUCell(ctx, x, h, 5)
		}, [][]float32{{1, 2}}, [][]float32{{0, 0, 0}})
	})
}

func TestConvSceneEncoderShape(t *testing.T) {
	backend := newBackend(t)
	ctx := context.New()
	enc := NewConvSceneEncoder(params.SceneParams{
		Filters:    []int{4, 8},
		KernelSize: 3,
		Stride:     2,
		FeatureDim: 6,
		Activation: "relu",
	})
	scene := tensors.FromFlatDataAndDimensions(make([]float32, 2*3*16*12), 2, 3, 16, 12)
	out := context.MustExecOnce(backend, ctx, func(ctx *context.Context, scene *Node) *Node {
		return enc.Encode(ctx.In("scene"), scene)
	}, scene)
	require.Equal(t, []int{2, 6}, out.Shape().Dimensions)
	require.Equal(t, 6, enc.FeatureDim())
}

func TestZeroSceneEncoder(t *testing.T) {
	backend := newBackend(t)
	enc := ZeroSceneEncoder{Dim: 3}
	scene := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 1, 1, 2, 2)
	out := MustExecOnce(backend, func(scene *Node) *Node { return enc.Encode(nil, scene) }, scene)
	require.Equal(t, [][]float32{{0, 0, 0}}, out.Value())
}

func TestSocialGrid(t *testing.T) {
	backend := newBackend(t)
	p := params.SCFParams{NumRings: 2, NumSectors: 4, MinRadius: 0, MaxRadius: 4}
	hidden := [][]float32{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	position := [][]float32{
		{0, 0},   // agent 0
		{1, 0},   // agent 1: east of 0, ring 0
		{0.5, 0}, // agent 2: other group
		{0, 3},   // agent 3: north of 0, ring 1 (edge at 2)
	}
	groups := []int32{0, 0, 1, 0}
	out := MustExecOnce(backend, func(h, pos, g *Node) *Node {
		return SocialGrid(p, h, pos, g)
	}, hidden, position, groups)
	require.Equal(t, []int{4, 8, 2}, out.Shape().Dimensions)
	grid := out.Value().([][][]float32)

	// Agent 0 sees agent 1 east (ring 0, sector 0) and agent 3 north (ring 1, sector 1).
	require.Equal(t, []float32{2, 20}, grid[0][0])
	require.Equal(t, []float32{4, 40}, grid[0][4+1])
	// Agent 1 sees agent 0 west (ring 0, sector 2); agent 3 is at distance sqrt(10) < 4,
	// north-west, so it lands in ring 1.
	require.Equal(t, []float32{1, 10}, grid[1][2])
	// Agent 2 is alone in its group.
	for _, bin := range grid[2] {
		require.Equal(t, []float32{0, 0}, bin)
	}
	// Nobody pools itself: total mass for agent 0 is exactly agents 1 and 3.
	var sum float32
	for _, bin := range grid[0] {
		sum += bin[0]
	}
	require.Equal(t, float32(6), sum)
}

func TestRingEdges(t *testing.T) {
	linear := ringEdges(params.SCFParams{NumRings: 4, MinRadius: 0, MaxRadius: 8})
	require.InDeltaSlice(t, []float64{2, 4, 6}, linear, 1e-9)

	logSpaced := ringEdges(params.SCFParams{NumRings: 2, MinRadius: 1, MaxRadius: 4})
	require.InDeltaSlice(t, []float64{2}, logSpaced, 1e-9)
}

func TestSCFOutputShape(t *testing.T) {
	backend := newBackend(t)
	ctx := context.New()
	p := params.Default().SCF
	p.OutputDim = 10
	b := 3
	mat := func(cols int) [][]float32 {
		m := make([][]float32, b)
		for i := range m {
			m[i] = make([]float32, cols)
			for j := range m[i] {
				m[i][j] = float32(i+j) * 0.1
			}
		}
		return m
	}
	out := context.MustExecOnce(backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
		return SCF(ctx.In("scf"), SCFInputs{
			Hidden:   inputs[0],
			Position: inputs[1],
			Relative: inputs[2],
			Velocity: inputs[3],
			Scene:    inputs[4],
			Start:    inputs[5],
			Groups:   inputs[6],
		}, p)
	}, mat(5), mat(2), mat(2), mat(2), mat(7), mat(2), []int32{0, 0, 1})
	require.Equal(t, []int{3, 10}, out.Shape().Dimensions)
}
