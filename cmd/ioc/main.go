package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/gomlx/backends/simplego"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/desire/datasets"
	"github.com/Noofbiz/desire/ioc"
	"github.com/Noofbiz/desire/params"
	"github.com/Noofbiz/desire/trajectory"
)

// defaultConfigJSON is written to ioc.json when no -config path is given, so
// the default configuration is available on disk for editing. CLI flags still
// take precedence over anything loaded from it.
const defaultConfigJSON = `{
  "num_layers": 40,
  "num_dims": 2,
  "shared_recurrent_weights": true,
  "velocity_mode": "relative",
  "seed": 42,
  "gru": {
    "input_size": 80,
    "hidden_size": 48
  },
  "scf": {
    "velocity_dim": 16,
    "position_dim": 16,
    "scene_dim": 32,
    "social_dim": 32,
    "output_dim": 80,
    "num_rings": 6,
    "num_sectors": 6,
    "min_radius": 0.5,
    "max_radius": 4.0,
    "activation": "relu"
  },
  "scoring_fc": {
    "sizes": [48, 1],
    "activation": "relu"
  },
  "scene": {
    "encoder": "conv",
    "filters": [16, 32, 32],
    "kernel_size": 3,
    "stride": 2,
    "feature_dim": 32,
    "activation": "relu"
  }
}
`

func main() {
	klog.InitFlags(nil)

	configPath := flag.String("config", "", "path to JSON IOC params (optional). If empty, ioc.json is created from defaults and loaded")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for generated inputs")
	batch := flag.Int("batch", 16, "number of agents when generating random inputs")
	sceneC := flag.Int("scene-c", 3, "scene channels")
	sceneH := flag.Int("scene-h", 640, "scene height")
	sceneW := flag.Int("scene-w", 480, "scene width")
	dataPattern := flag.String("data", "", "glob pattern of trajectory files; if empty random inputs are used")
	obsLen := flag.Int("obs", 8, "observed steps per window when -data is set")
	windows := flag.Int("windows", 4, "number of dataset windows per batch when -data is set")
	plotDir := flag.String("plot", "", "if set, write a PNG of the reconstructed trajectories to this directory")
	var o overrides
	flag.IntVar(&o.numLayers, "num-layers", 0, "override num_layers (0 keeps the config value)")
	flag.StringVar(&o.shared, "shared-recurrent-weights", "", "override shared_recurrent_weights: 'true' or 'false'")
	flag.StringVar(&o.velocity, "velocity-mode", "", "override velocity_mode: 'relative' or 'gradient'")
	flag.StringVar(&o.sceneEncoder, "scene-encoder", "", "override scene.encoder: 'conv' or 'zero'")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")
	flag.Parse()

	p, err := loadParams(*configPath)
	if err != nil {
		klog.Fatalf("failed to load ioc params: %v", err)
	}
	p, err = o.apply(p)
	if err != nil {
		klog.Fatalf("invalid effective configuration: %v", err)
	}
	if *dataPattern != "" && (*obsLen < 1 || *windows < 1) {
		klog.Fatalf("-obs and -windows must be >= 1, got %d and %d", *obsLen, *windows)
	}

	if *printEffectiveConfig {
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			klog.Fatalf("failed to marshal effective config: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	backend, err := simplego.New("")
	if err != nil {
		klog.Fatalf("failed to create simplego backend: %v", err)
	}
	model, err := ioc.New(backend, p, nil)
	if err != nil {
		klog.Fatalf("failed to create ioc model: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	var in ioc.Inputs
	if *dataPattern != "" {
		in, err = datasetInputs(rng, p, *dataPattern, *obsLen, *windows, *sceneC, *sceneH, *sceneW)
		if err != nil {
			klog.Fatalf("failed to build inputs from %s: %v", *dataPattern, err)
		}
	} else {
		in = ioc.RandomInputs(rng, p, *batch, *sceneC, *sceneH, *sceneW)
	}
	klog.Infof("Running IOC forward: agents=%d layers=%d hidden=%d scene=%v",
		len(in.YPred), p.NumLayers, p.GRU.HiddenSize, in.Scene.Dims)

	start := time.Now()
	out, err := model.Forward(in)
	if err != nil {
		klog.Fatalf("forward failed: %v", err)
	}
	klog.Infof("Forward done in %s: %d scores, delta shape [%d %d %d]",
		time.Since(start).Round(time.Millisecond), len(out.Scores),
		len(out.Delta), len(out.Delta[0]), len(out.Delta[0][0]))
	for i, s := range out.Scores {
		klog.V(1).Infof("layer %02d: mean score %.4f", i, meanScore(s))
	}

	if *plotDir != "" {
		refined := applyDelta(out.Absolute, out.Delta)
		if err := plotTrajectories(*plotDir, out.Absolute, refined); err != nil {
			klog.Fatalf("failed to plot trajectories: %v", err)
		}
		klog.Infof("Wrote plot to %s", filepath.Join(*plotDir, plotFile))
	}
}

// overrides are the command line flags that take precedence over the JSON
// config. Zero values keep the config value.
type overrides struct {
	numLayers    int
	shared       string
	velocity     string
	sceneEncoder string
}

// apply returns p with the overrides set, validated.
func (o overrides) apply(p params.IOCParams) (params.IOCParams, error) {
	if o.numLayers > 0 {
		p.NumLayers = o.numLayers
	}
	switch strings.ToLower(strings.TrimSpace(o.shared)) {
	case "":
	case "true":
		p.SharedRecurrentWeights = true
	case "false":
		p.SharedRecurrentWeights = false
	default:
		return p, fmt.Errorf("invalid -shared-recurrent-weights %q", o.shared)
	}
	if o.velocity != "" {
		p.VelocityMode = params.VelocityMode(o.velocity)
	}
	if o.sceneEncoder != "" {
		p.Scene.Encoder = o.sceneEncoder
	}
	return p, p.Validate()
}

// loadParams reads the config at path, or creates ioc.json from the embedded
// defaults and loads it when path is empty.
func loadParams(path string) (params.IOCParams, error) {
	if strings.TrimSpace(path) != "" {
		return params.Load(path)
	}
	defaultPath := "ioc.json"
	if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
		if err := os.WriteFile(defaultPath, []byte(defaultConfigJSON), 0644); err != nil {
			klog.Warningf("could not write default config %s: %v", defaultPath, err)
			return params.Parse([]byte(defaultConfigJSON))
		}
		klog.Infof("Wrote default config to %s", defaultPath)
	} else if err != nil {
		klog.Warningf("could not stat default config %s: %v", defaultPath, err)
		return params.Parse([]byte(defaultConfigJSON))
	}
	return params.Load(defaultPath)
}

// datasetInputs builds model inputs from the first windows of a shuffled
// trajectory dataset. The ground-truth future steps stand in for the
// predicted relative trajectory.
func datasetInputs(rng *rand.Rand, p params.IOCParams, pattern string, obsLen, windows, c, h, w int) (ioc.Inputs, error) {
	if obsLen < 1 || windows < 1 {
		return ioc.Inputs{}, fmt.Errorf("obs and windows must be >= 1, got %d and %d", obsLen, windows)
	}
	if p.NumDims != datasets.NumDims {
		return ioc.Inputs{}, fmt.Errorf("dataset positions are %dD, config has num_dims=%d", datasets.NumDims, p.NumDims)
	}
	ds, err := datasets.NewTrajectoryDataset(pattern, obsLen, p.NumLayers)
	if err != nil {
		return ioc.Inputs{}, err
	}
	if ds.Len() == 0 {
		return ioc.Inputs{}, fmt.Errorf("no windows of %d steps in %s", obsLen+p.NumLayers, pattern)
	}
	ds.Shuffle(rng.Int63())
	indices := make([]int, min(windows, ds.Len()))
	for i := range indices {
		indices[i] = i
	}
	b, err := ds.Batch(indices)
	if err != nil {
		return ioc.Inputs{}, err
	}
	klog.Infof("Loaded %d windows (%d agents) from %s", len(indices), b.Len(), ds.Name())

	scene := trajectory.NewScene(1, c, h, w)
	for i := range scene.Data {
		scene.Data[i] = rng.Float32()
	}
	return ioc.Inputs{
		YPred:   b.Relative,
		Hidden:  trajectory.Zeros(b.Len(), p.GRU.HiddenSize),
		Scene:   scene,
		Start:   b.Start,
		LastObs: b.LastObs,
		Groups:  b.Groups,
	}, nil
}

func meanScore(s [][]float32) float64 {
	var sum float64
	var n int
	for _, row := range s {
		for _, v := range row {
			sum += float64(v)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// applyDelta adds the predicted delta to the absolute trajectory.
func applyDelta(abs, delta [][][]float32) [][][]float32 {
	out := make([][][]float32, len(abs))
	for b := range abs {
		out[b] = make([][]float32, len(abs[b]))
		for d := range abs[b] {
			out[b][d] = make([]float32, len(abs[b][d]))
			for t := range abs[b][d] {
				out[b][d][t] = abs[b][d][t] + delta[b][d][t]
			}
		}
	}
	return out
}
