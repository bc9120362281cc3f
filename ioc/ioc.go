// Package ioc implements the IOC (inverse optimal control) ranking module of
// a trajectory forecaster.
//
// Given a candidate relative trajectory, an initial hidden state, a scene and
// the agents' start positions, the model runs one refinement layer per
// predicted step. Each layer fuses agent, social and scene context, updates a
// recurrent hidden state and scores it. The final hidden state is projected
// to a trajectory delta.
//
// The model is a GoMLX graph: variables live in a *context.Context and the
// graph is compiled once per input shape by a context.Exec.
package ioc

import (
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/desire/nn"
	"github.com/Noofbiz/desire/params"
	"github.com/Noofbiz/desire/trajectory"
)

// Model is an IOC scoring module. The graph is compiled on the first
// Forward call and cached per input shape.
type Model struct {
	params  params.IOCParams
	scene   nn.SceneEncoder
	backend backends.Backend
	ctx     *context.Context

	execOnce sync.Once
	exec     *context.Exec
	execErr  error
}

// New creates a model on backend. If scene is nil the encoder named by
// p.Scene.Encoder is built from p.Scene.
func New(backend backends.Backend, p params.IOCParams, scene nn.SceneEncoder) (*Model, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid ioc params")
	}
	p.Scoring.Sizes = append([]int(nil), p.Scoring.Sizes...)
	p.Scene.Filters = append([]int(nil), p.Scene.Filters...)
	if scene == nil {
		scene = newSceneEncoder(p.Scene)
	}
	ctx := context.New()
	ctx.RngStateFromSeed(p.Seed)
	klog.V(1).Infof("IOC model: %d layers, shared recurrent weights=%v, velocity=%s, scene encoder=%s",
		p.NumLayers, p.SharedRecurrentWeights, p.VelocityMode, p.Scene.Encoder)
	return &Model{
		params:  p,
		scene:   scene,
		backend: backend,
		ctx:     ctx,
	}, nil
}

func newSceneEncoder(p params.SceneParams) nn.SceneEncoder {
	if p.Encoder == params.SceneEncoderZero {
		return nn.ZeroSceneEncoder{Dim: p.FeatureDim}
	}
	return nn.NewConvSceneEncoder(p)
}

// Params returns a copy of the model configuration.
func (m *Model) Params() params.IOCParams { return m.params }

// Context returns the variable store of the model.
func (m *Model) Context() *context.Context { return m.ctx }

// Inputs of one forward pass over B agents.
type Inputs struct {
	// YPred is the predicted relative trajectory, [B][NumDims][NumLayers].
	YPred [][][]float32
	// Hidden is the initial hidden state, [B][HiddenSize].
	Hidden [][]float32
	// Scene holds 1 or B channels-first images.
	Scene *trajectory.Scene
	// Start is the start position, [B][NumDims].
	Start [][]float32
	// LastObs is the last observed position relative to Start. Nil means zeros.
	LastObs [][]float32
	// Groups are [start, end) agent ranges that see each other in the
	// social pooling. Nil puts every agent in one group.
	Groups [][2]int
}

// Output of one forward pass.
type Output struct {
	// Scores has one [B][S] entry per refinement layer, in layer order.
	Scores [][][]float32
	// Delta is the predicted trajectory delta, [B][NumDims][NumLayers].
	Delta [][][]float32
	// Absolute is the reconstructed absolute trajectory the layers saw.
	Absolute [][][]float32
	// Hidden is the final hidden state, [B][HiddenSize].
	Hidden [][]float32
}

// Forward runs the refinement layers over in.
func (m *Model) Forward(in Inputs) (*Output, error) {
	args, err := m.tensors(in)
	if err != nil {
		return nil, err
	}
	exec, err := m.executor()
	if err != nil {
		return nil, err
	}
	results, err := exec.Exec(args...)
	if err != nil {
		return nil, errors.Wrap(err, "ioc forward")
	}
	l := m.params.NumLayers
	if len(results) != l+3 {
		return nil, errors.Errorf("ioc forward returned %d tensors, expected %d", len(results), l+3)
	}

	out := &Output{Scores: make([][][]float32, l)}
	for i := range l {
		if out.Scores[i], err = value[[][]float32](results[i]); err != nil {
			return nil, errors.WithMessagef(err, "score %d", i)
		}
	}
	if out.Delta, err = value[[][][]float32](results[l]); err != nil {
		return nil, errors.WithMessage(err, "delta")
	}
	if out.Absolute, err = value[[][][]float32](results[l+1]); err != nil {
		return nil, errors.WithMessage(err, "absolute")
	}
	if out.Hidden, err = value[[][]float32](results[l+2]); err != nil {
		return nil, errors.WithMessage(err, "hidden")
	}
	return out, nil
}

func (m *Model) executor() (*context.Exec, error) {
	m.execOnce.Do(func() {
		m.exec, m.execErr = context.NewExec(m.backend, m.ctx, m.ForwardGraph)
		if m.execErr != nil {
			m.execErr = errors.Wrap(m.execErr, "compile ioc graph")
		}
	})
	return m.exec, m.execErr
}

// tensors validates in against the configuration and converts it to the
// ForwardGraph inputs.
func (m *Model) tensors(in Inputs) ([]any, error) {
	p := m.params
	ypred, err := trajectory.Flatten3(in.YPred)
	if err != nil {
		return nil, errors.WithMessage(err, "ypred")
	}
	b := ypred.Dims[0]
	if ypred.Dims[1] != p.NumDims || ypred.Dims[2] != p.NumLayers {
		return nil, errors.Errorf("ypred shaped %v, expected [%d %d %d]", ypred.Dims, b, p.NumDims, p.NumLayers)
	}
	hidden, err := m.matrix("hidden", in.Hidden, b, p.GRU.HiddenSize)
	if err != nil {
		return nil, err
	}
	start, err := m.matrix("start", in.Start, b, p.NumDims)
	if err != nil {
		return nil, err
	}
	lastObs := in.LastObs
	if lastObs == nil {
		lastObs = trajectory.Zeros(b, p.NumDims)
	}
	last, err := m.matrix("last observation", lastObs, b, p.NumDims)
	if err != nil {
		return nil, err
	}
	if in.Scene == nil {
		return nil, errors.New("scene is nil")
	}
	if err := in.Scene.Validate(); err != nil {
		return nil, err
	}
	if n := in.Scene.Dims[0]; n != 1 && n != b {
		return nil, errors.Errorf("%d scenes given for a batch of %d, expected 1 or %d", n, b, b)
	}
	groups, err := trajectory.GroupIDs(b, in.Groups)
	if err != nil {
		return nil, err
	}
	args := make([]any, numInputs)
	args[InputYPred] = ypred.Tensor()
	args[InputHidden] = hidden
	args[InputScene] = in.Scene.Tensor()
	args[InputStart] = start
	args[InputLastObs] = last
	args[InputGroups] = groups
	return args, nil
}

func (m *Model) matrix(name string, x [][]float32, rows, cols int) (*tensors.Tensor, error) {
	f, err := trajectory.Flatten2(x)
	if err != nil {
		return nil, errors.WithMessage(err, name)
	}
	if f.Dims[0] != rows || f.Dims[1] != cols {
		return nil, errors.Errorf("%s shaped %v, expected [%d %d]", name, f.Dims, rows, cols)
	}
	return f.Tensor(), nil
}

func value[T any](t *tensors.Tensor) (T, error) {
	v, ok := t.Value().(T)
	if !ok {
		var zero T
		return zero, errors.Errorf("unexpected tensor %s", t.Shape())
	}
	return v, nil
}
