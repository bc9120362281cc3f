// Package params holds the configuration of the IOC scoring module.
//
// Parameters are plain structs with JSON tags so they can be loaded from a
// config file and overridden from the command line. Once a model is built
// from an IOCParams value it keeps its own copy; changing the struct
// afterwards has no effect on the model.
package params

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// VelocityMode selects how per-layer velocity is derived from the predicted
// relative trajectory.
type VelocityMode string

const (
	// VelocityRelative uses the relative prediction directly as velocity.
	VelocityRelative VelocityMode = "relative"

	// VelocityGradient uses the numerical time gradient of the prediction
	// (central differences inside, one-sided at the edges).
	VelocityGradient VelocityMode = "gradient"
)

// GRUParams sizes the recurrent refiner.
type GRUParams struct {
	// InputSize must match SCFParams.OutputDim.
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`
}

// SCFParams sizes the social/context feature combiner.
type SCFParams struct {
	VelocityDim int `json:"velocity_dim"`
	PositionDim int `json:"position_dim"`
	SceneDim    int `json:"scene_dim"`
	SocialDim   int `json:"social_dim"`
	OutputDim   int `json:"output_dim"`

	// Log-polar social pooling grid.
	NumRings   int     `json:"num_rings"`
	NumSectors int     `json:"num_sectors"`
	MinRadius  float64 `json:"min_radius"`
	MaxRadius  float64 `json:"max_radius"`

	Activation string `json:"activation"`
}

// NumBins returns the number of social pooling bins.
func (p SCFParams) NumBins() int { return p.NumRings * p.NumSectors }

// FCParams describes a fully connected stack: every size is one dense layer,
// hidden layers are followed by Activation and the last one is linear.
type FCParams struct {
	Sizes      []int  `json:"sizes"`
	Activation string `json:"activation"`
}

// OutputDim is the width of the last layer.
func (p FCParams) OutputDim() int {
	if len(p.Sizes) == 0 {
		return 0
	}
	return p.Sizes[len(p.Sizes)-1]
}

// Scene encoders selectable with SceneParams.Encoder.
const (
	SceneEncoderConv = "conv"
	SceneEncoderZero = "zero"
)

// SceneParams sizes the scene encoder. With Encoder "zero" the scene is
// ignored and FeatureDim zeros are fed to the SCF.
type SceneParams struct {
	Encoder    string `json:"encoder"`
	Filters    []int  `json:"filters"`
	KernelSize int    `json:"kernel_size"`
	Stride     int    `json:"stride"`
	FeatureDim int    `json:"feature_dim"`
	Activation string `json:"activation"`
}

// IOCParams is the full configuration of an IOC model.
type IOCParams struct {
	NumLayers int `json:"num_layers"`
	NumDims   int `json:"num_dims"`

	// SharedRecurrentWeights makes every refinement layer use the layer-0
	// GRU and scoring head. The SCF is always per layer.
	SharedRecurrentWeights bool `json:"shared_recurrent_weights"`

	VelocityMode VelocityMode `json:"velocity_mode"`

	// Seed for variable initialization.
	Seed int64 `json:"seed"`

	GRU     GRUParams   `json:"gru"`
	SCF     SCFParams   `json:"scf"`
	Scoring FCParams    `json:"scoring_fc"`
	Scene   SceneParams `json:"scene"`
}

// Default returns the reference configuration: 40 refinement layers over 2D
// trajectories with a 48-wide hidden state.
func Default() IOCParams {
	return IOCParams{
		NumLayers:              40,
		NumDims:                2,
		SharedRecurrentWeights: true,
		VelocityMode:           VelocityRelative,
		Seed:                   42,
		GRU: GRUParams{
			InputSize:  80,
			HiddenSize: 48,
		},
		SCF: SCFParams{
			VelocityDim: 16,
			PositionDim: 16,
			SceneDim:    32,
			SocialDim:   32,
			OutputDim:   80,
			NumRings:    6,
			NumSectors:  6,
			MinRadius:   0.5,
			MaxRadius:   4.0,
			Activation:  "relu",
		},
		Scoring: FCParams{
			Sizes:      []int{48, 1},
			Activation: "relu",
		},
		Scene: SceneParams{
			Encoder:    SceneEncoderConv,
			Filters:    []int{16, 32, 32},
			KernelSize: 3,
			Stride:     2,
			FeatureDim: 32,
			Activation: "relu",
		},
	}
}

// Parse decodes JSON over the defaults and validates the result.
func Parse(data []byte) (IOCParams, error) {
	p := Default()
	if err := json.Unmarshal(data, &p); err != nil {
		return IOCParams{}, errors.Wrap(err, "decode ioc params")
	}
	if err := p.Validate(); err != nil {
		return IOCParams{}, err
	}
	return p, nil
}

// Load reads a JSON config file over the defaults.
func Load(path string) (IOCParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IOCParams{}, errors.Wrapf(err, "read ioc params %s", path)
	}
	p, err := Parse(data)
	if err != nil {
		return IOCParams{}, errors.WithMessagef(err, "ioc params %s", path)
	}
	return p, nil
}

// Validate reports the first invalid field, if any.
func (p IOCParams) Validate() error {
	switch {
	case p.NumLayers < 1:
		return errors.Errorf("num_layers must be >= 1, got %d", p.NumLayers)
	case p.NumDims < 1:
		return errors.Errorf("num_dims must be >= 1, got %d", p.NumDims)
	case p.GRU.HiddenSize < 1:
		return errors.Errorf("gru.hidden_size must be >= 1, got %d", p.GRU.HiddenSize)
	case p.GRU.InputSize != p.SCF.OutputDim:
		return errors.Errorf("gru.input_size (%d) must match scf.output_dim (%d)", p.GRU.InputSize, p.SCF.OutputDim)
	}
	switch p.VelocityMode {
	case VelocityRelative:
	case VelocityGradient:
		if p.NumLayers < 2 {
			return errors.Errorf("velocity_mode %q needs num_layers >= 2, got %d", p.VelocityMode, p.NumLayers)
		}
	default:
		return errors.Errorf("unknown velocity_mode %q: valid values are %q and %q", p.VelocityMode, VelocityRelative, VelocityGradient)
	}
	if err := p.SCF.validate(); err != nil {
		return err
	}
	if err := validateSizes("scoring_fc.sizes", p.Scoring.Sizes); err != nil {
		return err
	}
	if err := validateActivation("scoring_fc.activation", p.Scoring.Activation); err != nil {
		return err
	}
	return p.Scene.validate()
}

func (p SCFParams) validate() error {
	dims := []struct {
		name  string
		value int
	}{
		{"scf.velocity_dim", p.VelocityDim},
		{"scf.position_dim", p.PositionDim},
		{"scf.scene_dim", p.SceneDim},
		{"scf.social_dim", p.SocialDim},
		{"scf.output_dim", p.OutputDim},
		{"scf.num_rings", p.NumRings},
		{"scf.num_sectors", p.NumSectors},
	}
	for _, d := range dims {
		if d.value < 1 {
			return errors.Errorf("%s must be >= 1, got %d", d.name, d.value)
		}
	}
	if p.MinRadius < 0 || p.MaxRadius <= p.MinRadius {
		return errors.Errorf("scf radii must satisfy 0 <= min_radius < max_radius, got [%g, %g)", p.MinRadius, p.MaxRadius)
	}
	return validateActivation("scf.activation", p.Activation)
}

func (p SceneParams) validate() error {
	switch p.Encoder {
	case SceneEncoderConv:
	case SceneEncoderZero:
		if p.FeatureDim < 1 {
			return errors.Errorf("scene.feature_dim must be >= 1, got %d", p.FeatureDim)
		}
		return nil
	default:
		return errors.Errorf("unknown scene.encoder %q: valid values are %q and %q", p.Encoder, SceneEncoderConv, SceneEncoderZero)
	}
	if len(p.Filters) == 0 {
		return errors.New("scene.filters must not be empty")
	}
	if err := validateSizes("scene.filters", p.Filters); err != nil {
		return err
	}
	if p.KernelSize < 1 || p.Stride < 1 || p.FeatureDim < 1 {
		return errors.Errorf("scene kernel_size, stride and feature_dim must be >= 1, got %d, %d, %d",
			p.KernelSize, p.Stride, p.FeatureDim)
	}
	return validateActivation("scene.activation", p.Activation)
}

func validateSizes(name string, sizes []int) error {
	if len(sizes) == 0 {
		return errors.Errorf("%s must not be empty", name)
	}
	for i, s := range sizes {
		if s < 1 {
			return errors.Errorf("%s[%d] must be >= 1, got %d", name, i, s)
		}
	}
	return nil
}

// Activations lists the activation names understood by the nn package.
var Activations = []string{"relu", "tanh", "sigmoid", "none"}

func validateActivation(field, name string) error {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, a := range Activations {
		if n == a {
			return nil
		}
	}
	return errors.Errorf("%s: unknown activation %q (valid: %s)", field, name, strings.Join(Activations, ", "))
}
