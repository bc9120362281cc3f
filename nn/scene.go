package nn

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"

	"github.com/Noofbiz/desire/params"
)

// SceneEncoder maps a batch of scene images shaped [scenes, channels, height,
// width] to one pooled feature vector per scene, shaped [scenes, features].
type SceneEncoder interface {
	Encode(ctx *context.Context, scene *Node) *Node
	FeatureDim() int
}

// ConvSceneEncoder is a small strided CNN followed by global mean pooling and
// a dense projection.
type ConvSceneEncoder struct {
	Params params.SceneParams
}

// NewConvSceneEncoder returns a ConvSceneEncoder for p.
func NewConvSceneEncoder(p params.SceneParams) *ConvSceneEncoder {
	return &ConvSceneEncoder{Params: p}
}

// FeatureDim implements SceneEncoder.
func (e *ConvSceneEncoder) FeatureDim() int { return e.Params.FeatureDim }

// Encode implements SceneEncoder. Images are channels-first.
func (e *ConvSceneEncoder) Encode(ctx *context.Context, scene *Node) *Node {
	if scene.Rank() != 4 {
		Panicf("ConvSceneEncoder.Encode(): scene must be shaped [scenes, channels, height, width], got %s", scene.Shape())
	}
	// Convolution expects channels-last.
	x := TransposeAllDims(scene, 0, 2, 3, 1)
	for i, filters := range e.Params.Filters {
		x = layers.Convolution(ctx.In(fmt.Sprintf("conv_%d", i)), x).
			Filters(filters).
			KernelSize(e.Params.KernelSize).
			Strides(e.Params.Stride).
			PadSame().
			Done()
		x = Activation(e.Params.Activation, x)
	}
	x = ReduceMean(x, 1, 2)
	return layers.DenseWithBias(ctx.In("project"), x, e.Params.FeatureDim)
}

// ZeroSceneEncoder ignores the scene and returns zeros. It stands in for a
// scene model when only trajectories are available.
type ZeroSceneEncoder struct {
	Dim int
}

// FeatureDim implements SceneEncoder.
func (e ZeroSceneEncoder) FeatureDim() int { return e.Dim }

// Encode implements SceneEncoder.
func (e ZeroSceneEncoder) Encode(_ *context.Context, scene *Node) *Node {
	if scene.Rank() < 1 {
		Panicf("ZeroSceneEncoder.Encode(): scene must have a leading scenes axis, got %s", scene.Shape())
	}
	g := scene.Graph()
	return BroadcastToDims(Scalar(g, scene.DType(), 0), scene.Shape().Dimensions[0], e.Dim)
}
