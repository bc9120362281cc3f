package nn

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// GRUCell runs one update of a gated recurrent unit.
//
// x is shaped [batch, inputSize] and h is shaped [batch, hiddenSize]. It
// returns the new hidden state, shaped like h:
//
//	z  = sigmoid(W_z x + U_z h + b_z)
//	r  = sigmoid(W_r x + U_r h + b_r)
//	n  = tanh(W_n x + r * (U_n h + b_n))
//	h' = (1 - z) * n + z * h
func GRUCell(ctx *context.Context, x, h *Node, hiddenSize int) *Node {
	if x.Rank() != 2 || h.Rank() != 2 {
		Panicf("GRUCell(): x and h must be rank 2, got x.shape=%s, h.shape=%s", x.Shape(), h.Shape())
	}
	if lastDim(h) != hiddenSize {
		Panicf("GRUCell(): hidden state shaped %s, expected last dimension %d", h.Shape(), hiddenSize)
	}
	if x.Shape().Dimensions[0] != h.Shape().Dimensions[0] {
		Panicf("GRUCell(): batch mismatch between x.shape=%s and h.shape=%s", x.Shape(), h.Shape())
	}

	xGates := layers.DenseWithBias(ctx.In("input"), x, 3*hiddenSize)
	hGates := layers.DenseWithBias(ctx.In("hidden"), h, 3*hiddenSize)
	xz, xr, xn := splitGates(xGates, hiddenSize)
	hz, hr, hn := splitGates(hGates, hiddenSize)

	z := Sigmoid(Add(xz, hz))
	r := Sigmoid(Add(xr, hr))
	n := Tanh(Add(xn, Mul(r, hn)))
	return Add(Mul(OneMinus(z), n), Mul(z, h))
}

// splitGates cuts a [batch, 3*size] node into its update, reset and
// candidate parts.
func splitGates(gates *Node, size int) (z, r, n *Node) {
	z = Slice(gates, AxisRange(), AxisRange(0, size))
	r = Slice(gates, AxisRange(), AxisRange(size, 2*size))
	n = Slice(gates, AxisRange(), AxisRange(2*size, 3*size))
	return
}
