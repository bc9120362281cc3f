package ioc

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/desire/nn"
	"github.com/Noofbiz/desire/params"
)

// Graph input positions, in the order ForwardGraph expects them.
const (
	InputYPred = iota
	InputHidden
	InputScene
	InputStart
	InputLastObs
	InputGroups
	numInputs
)

// ReconstructAbsolute turns relative steps rel [B, D, L] into absolute
// positions: lastObs [B, D] is prepended as the seed step, the sequence is
// cumulatively summed along time, the seed is dropped and start [B, D] is
// added. The result carries no gradient.
func ReconstructAbsolute(start, lastObs, rel *Node) *Node {
	dims := rel.Shape().Dimensions
	if rel.Rank() != 3 {
		Panicf("ReconstructAbsolute(): rel must be shaped [batch, dims, steps], got %s", rel.Shape())
	}
	b, d, l := dims[0], dims[1], dims[2]
	if !start.Shape().Equal(lastObs.Shape()) || start.Rank() != 2 || start.Shape().Dimensions[0] != b || start.Shape().Dimensions[1] != d {
		Panicf("ReconstructAbsolute(): start %s and lastObs %s must be shaped [%d, %d]", start.Shape(), lastObs.Shape(), b, d)
	}
	seq := Concatenate([]*Node{InsertAxes(lastObs, -1), rel}, 2)
	abs := Slice(CumSum(seq, 2), AxisRange(), AxisRange(), AxisRange(1))
	abs = Add(abs, BroadcastToDims(InsertAxes(start, -1), b, d, l))
	return StopGradient(abs)
}

// Velocity derives per-step velocity [B, D, L] from the relative prediction.
func Velocity(rel *Node, mode params.VelocityMode) *Node {
	switch mode {
	case params.VelocityRelative:
		return rel
	case params.VelocityGradient:
		return timeGradient(StopGradient(rel))
	}
	Panicf("Velocity(): unknown velocity mode %q", mode)
	return nil
}

// timeGradient is the numerical derivative along the last axis: central
// differences inside, one-sided differences at both edges.
func timeGradient(x *Node) *Node {
	l := x.Shape().Dimensions[2]
	if l < 2 {
		Panicf("timeGradient(): need at least 2 steps, got shape %s", x.Shape())
	}
	step := func(from, to int) *Node { return Slice(x, AxisRange(), AxisRange(), AxisRange(from, to)) }
	first := Sub(step(1, 2), step(0, 1))
	last := Sub(step(l-1, l), step(l-2, l-1))
	if l == 2 {
		return Concatenate([]*Node{first, last}, 2)
	}
	inner := MulScalar(Sub(step(2, l), step(0, l-2)), 0.5)
	return Concatenate([]*Node{first, inner, last}, 2)
}

// layerContexts returns the variable scopes of refinement layer i. With
// shared recurrent weights every layer after the first reuses the layer-0
// GRU and scoring variables.
func (m *Model) layerContexts(ctx *context.Context, i int) (scf, gru, scoring *context.Context) {
	scf = ctx.In(fmt.Sprintf("scf_%02d", i))
	if !m.params.SharedRecurrentWeights {
		return scf, ctx.In(fmt.Sprintf("gru_%02d", i)), ctx.In(fmt.Sprintf("scoring_%02d", i))
	}
	gru, scoring = ctx.In("gru_00"), ctx.In("scoring_00")
	if i > 0 {
		gru, scoring = gru.Reuse(), scoring.Reuse()
	}
	return scf, gru, scoring
}

// ForwardGraph builds the refinement graph. Inputs are, by position:
//
//	ypred   [B, D, L] predicted relative trajectory
//	hidden  [B, H] (or [1, B, H]) initial hidden state
//	scene   [N, C, H, W] scene images, N is 1 or B
//	start   [B, D] start position
//	lastObs [B, D] last observed position relative to start
//	groups  [B] int32 group id per agent
//
// It returns the L per-layer scores [B, S] in layer order, followed by the
// delta [B, D, L], the absolute trajectory [B, D, L] and the final hidden
// state [B, H].
func (m *Model) ForwardGraph(ctx *context.Context, inputs []*Node) []*Node {
	if len(inputs) != numInputs {
		Panicf("IOC.ForwardGraph(): expected %d inputs, got %d", numInputs, len(inputs))
	}
	p := m.params
	ypred := inputs[InputYPred]
	hidden := inputs[InputHidden]
	start := inputs[InputStart]
	lastObs := inputs[InputLastObs]
	groups := inputs[InputGroups]

	if hidden.Rank() == 3 && hidden.Shape().Dimensions[0] == 1 {
		dims := hidden.Shape().Dimensions
		hidden = Reshape(hidden, dims[1], dims[2])
	}
	if ypred.Rank() != 3 {
		Panicf("IOC.ForwardGraph(): ypred must be shaped [batch, dims, layers], got %s", ypred.Shape())
	}
	b, d, l := ypred.Shape().Dimensions[0], ypred.Shape().Dimensions[1], ypred.Shape().Dimensions[2]
	if d != p.NumDims || l != p.NumLayers {
		Panicf("IOC.ForwardGraph(): ypred shaped %s, configured for %d dims and %d layers", ypred.Shape(), p.NumDims, p.NumLayers)
	}
	if hidden.Rank() != 2 || hidden.Shape().Dimensions[0] != b || hidden.Shape().Dimensions[1] != p.GRU.HiddenSize {
		Panicf("IOC.ForwardGraph(): hidden shaped %s, expected [%d, %d]", hidden.Shape(), b, p.GRU.HiddenSize)
	}
	klog.V(1).Infof("building IOC graph: batch=%d dims=%d layers=%d hidden=%d", b, d, l, p.GRU.HiddenSize)

	absolute := ReconstructAbsolute(start, lastObs, ypred)
	velocity := Velocity(ypred, p.VelocityMode)
	scene := m.encodeScene(ctx, inputs[InputScene], b)

	at := func(x *Node, i int) *Node {
		return Reshape(Slice(x, AxisRange(), AxisRange(), AxisElem(i)), b, d)
	}
	scores := make([]*Node, 0, l+3)
	for i := range l {
		scfCtx, gruCtx, scoringCtx := m.layerContexts(ctx, i)
		fused := nn.SCF(scfCtx, nn.SCFInputs{
			Hidden:   hidden,
			Position: at(absolute, i),
			Relative: at(ypred, i),
			Velocity: at(velocity, i),
			Scene:    scene,
			Start:    start,
			Groups:   groups,
		}, p.SCF)
		hidden = nn.GRUCell(gruCtx, fused, hidden, p.GRU.HiddenSize)
		scores = append(scores, nn.FC(scoringCtx, hidden, p.Scoring))
	}

	delta := layers.DenseWithBias(ctx.In("delta"), hidden, d*l)
	delta = Reshape(delta, b, d, l)
	return append(scores, delta, absolute, hidden)
}

// encodeScene runs the scene encoder once and broadcasts a single scene to
// the whole batch.
func (m *Model) encodeScene(ctx *context.Context, scene *Node, batch int) *Node {
	encoded := m.scene.Encode(ctx.In("scene"), scene)
	n := encoded.Shape().Dimensions[0]
	switch n {
	case batch:
		return encoded
	case 1:
		return BroadcastToDims(encoded, batch, m.scene.FeatureDim())
	}
	Panicf("IOC: %d scenes given for a batch of %d, expected 1 or %d", n, batch, batch)
	return nil
}
