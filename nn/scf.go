package nn

import (
	"math"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/Noofbiz/desire/params"
)

// SCFInputs are the per-step inputs of the social/context feature combiner.
// B is the number of agents in the batch and D the number of trajectory dims.
type SCFInputs struct {
	Hidden   *Node // [B, hidden]
	Position *Node // absolute position, [B, D]
	Relative *Node // relative step, [B, D]
	Velocity *Node // [B, D]
	Scene    *Node // pooled scene feature, [B, F]
	Start    *Node // reference start position, [B, D]
	Groups   *Node // group id per agent, [B] int32
}

func (in SCFInputs) check() {
	b := in.Hidden.Shape().Dimensions[0]
	for _, n := range []struct {
		name string
		node *Node
		rank int
	}{
		{"hidden", in.Hidden, 2},
		{"position", in.Position, 2},
		{"relative", in.Relative, 2},
		{"velocity", in.Velocity, 2},
		{"scene", in.Scene, 2},
		{"start", in.Start, 2},
		{"groups", in.Groups, 1},
	} {
		if n.node == nil {
			Panicf("SCF(): input %q is nil", n.name)
		}
		if n.node.Rank() != n.rank || n.node.Shape().Dimensions[0] != b {
			Panicf("SCF(): input %q shaped %s, expected rank %d with %d agents", n.name, n.node.Shape(), n.rank, b)
		}
	}
	d := lastDim(in.Position)
	if lastDim(in.Relative) != d || lastDim(in.Velocity) != d || lastDim(in.Start) != d {
		Panicf("SCF(): position %s, relative %s, velocity %s and start %s must share the last dimension",
			in.Position.Shape(), in.Relative.Shape(), in.Velocity.Shape(), in.Start.Shape())
	}
}

// SCF fuses the agent's own motion, its neighbours' hidden states and the
// scene into one feature vector shaped [B, p.OutputDim].
func SCF(ctx *context.Context, in SCFInputs, p params.SCFParams) *Node {
	in.check()
	act := func(scope string, x *Node, dim int) *Node {
		return Activation(p.Activation, layers.DenseWithBias(ctx.In(scope), x, dim))
	}

	velocity := act("velocity", in.Velocity, p.VelocityDim)
	position := act("position", Concatenate([]*Node{Sub(in.Position, in.Start), in.Relative}, -1), p.PositionDim)
	scene := act("scene", in.Scene, p.SceneDim)

	grid := SocialGrid(p, in.Hidden, in.Position, in.Groups)
	dims := grid.Shape().Dimensions
	social := act("social", Reshape(grid, dims[0], dims[1]*dims[2]), p.SocialDim)

	return act("fuse", Concatenate([]*Node{velocity, position, scene, social}, -1), p.OutputDim)
}

// SocialGrid pools neighbour hidden states on a log-polar grid centred on
// each agent. It returns [B, p.NumBins(), hidden], where bin
// ring*NumSectors+sector holds the sum of the hidden states of agents of the
// same group (excluding the agent itself) that fall in it. Neighbours closer
// than MinRadius or at MaxRadius and beyond are ignored.
//
// Sectors are taken on the first two position coordinates, centred at angles
// 2*pi*s/NumSectors. With a single coordinate every neighbour lands in
// sector 0.
func SocialGrid(p params.SCFParams, hidden, position, groups *Node) *Node {
	g := hidden.Graph()
	dtype := position.DType()
	b := hidden.Shape().Dimensions[0]
	d := lastDim(position)

	// Positions carry no gradient: the bin assignment is discrete.
	position = StopGradient(position)

	// offsets[i, j] = position[j] - position[i]
	offsets := Sub(
		BroadcastToDims(InsertAxes(position, 0), b, b, d),
		BroadcastToDims(InsertAxes(position, 1), b, b, d))
	dist := Sqrt(ReduceSum(Square(offsets), -1))

	ring := Scalar(g, dtype, 0)
	for _, edge := range ringEdges(p) {
		ring = Add(ring, ConvertDType(GreaterOrEqual(dist, Scalar(g, dtype, edge)), dtype))
	}
	ring = ConvertDType(ring, dtypes.Int32)

	var sector *Node
	if d >= 2 && p.NumSectors > 1 {
		planar := Slice(offsets, AxisRange(), AxisRange(), AxisRange(0, 2))
		sector = ArgMax(Einsum("ijd,ds->ijs", planar, sectorDirections(g, dtype, p.NumSectors)), -1, dtypes.Int32)
	} else {
		sector = Zeros(g, shapes.Make(dtypes.Int32, b, b))
	}
	bin := Add(MulScalar(ring, float64(p.NumSectors)), sector)

	rows := Iota(g, shapes.Make(dtypes.Int32, b, b), 0)
	cols := Iota(g, shapes.Make(dtypes.Int32, b, b), 1)
	sameGroup := Equal(
		BroadcastToDims(InsertAxes(groups, 1), b, b),
		BroadcastToDims(InsertAxes(groups, 0), b, b))
	mask := LogicalAnd(sameGroup, NotEqual(rows, cols))
	mask = LogicalAnd(mask, GreaterOrEqual(dist, Scalar(g, dtype, p.MinRadius)))
	mask = LogicalAnd(mask, LessThan(dist, Scalar(g, dtype, p.MaxRadius)))

	weights := Mul(OneHot(bin, p.NumBins(), hidden.DType()),
		InsertAxes(ConvertDType(mask, hidden.DType()), -1))
	return Einsum("ijb,jh->ibh", weights, hidden)
}

// ringEdges returns the inner ring boundaries. They are log-spaced between
// MinRadius and MaxRadius, or linear when MinRadius is zero.
func ringEdges(p params.SCFParams) []float64 {
	edges := make([]float64, 0, p.NumRings-1)
	for k := 1; k < p.NumRings; k++ {
		frac := float64(k) / float64(p.NumRings)
		if p.MinRadius > 0 {
			edges = append(edges, p.MinRadius*math.Pow(p.MaxRadius/p.MinRadius, frac))
		} else {
			edges = append(edges, p.MaxRadius*frac)
		}
	}
	return edges
}

// sectorDirections returns the unit vectors of the sector centres, shaped
// [2, numSectors].
func sectorDirections(g *Graph, dtype dtypes.DType, numSectors int) *Node {
	dirs := [][]float64{make([]float64, numSectors), make([]float64, numSectors)}
	for s := range numSectors {
		angle := 2 * math.Pi * float64(s) / float64(numSectors)
		dirs[0][s] = math.Cos(angle)
		dirs[1][s] = math.Sin(angle)
	}
	return ConstAsDType(g, dtype, dirs)
}
