// Package nn implements the building blocks of the IOC model as GoMLX graph
// functions: fully connected stacks, a GRU cell, the scene encoder and the
// social/context feature combiner (SCF).
//
// Every block takes a *context.Context scoped by the caller. Contexts are
// checked, so calling a block twice under the same scope fails unless the
// second call gets a context marked with Reuse().
package nn

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"

	"github.com/Noofbiz/desire/params"
)

// Activation applies the named activation: relu, tanh, sigmoid or none.
func Activation(name string, x *Node) *Node {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "relu":
		return activations.Relu(x)
	case "tanh":
		return Tanh(x)
	case "sigmoid":
		return Sigmoid(x)
	case "none", "":
		return x
	}
	Panicf("unknown activation %q, valid values are %s", name, strings.Join(params.Activations, ", "))
	return nil
}

// FC applies a stack of dense layers, one per entry of p.Sizes. Hidden layers
// are followed by p.Activation, the last layer is linear.
func FC(ctx *context.Context, x *Node, p params.FCParams) *Node {
	if len(p.Sizes) == 0 {
		Panicf("FC(): no layer sizes given")
	}
	for i, size := range p.Sizes {
		x = layers.DenseWithBias(ctx.In(fmt.Sprintf("fc_%d", i)), x, size)
		if i < len(p.Sizes)-1 {
			x = Activation(p.Activation, x)
		}
	}
	return x
}

// lastDim returns the size of the last axis of x.
func lastDim(x *Node) int {
	dims := x.Shape().Dimensions
	return dims[len(dims)-1]
}
