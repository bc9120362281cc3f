package datasets

import (
	"bufio"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/desire/trajectory"
)

// NumDims of the positions stored in trajectory files.
const NumDims = 2

var _ Dataset = (*TrajectoryDataset)(nil)

// TrajectoryDataset holds windows cut from trajectory files.
type TrajectoryDataset struct {
	pattern string
	files   []string
	obsLen  int
	predLen int

	frames []*fileFrames
	index  []windowRef
	order  []int
}

// fileFrames is the parsed content of one file: sorted frame ids and agent
// positions per frame.
type fileFrames struct {
	path   string
	ids    []int
	agents []map[int][NumDims]float32
}

type windowRef struct {
	file  int
	frame int // position in fileFrames.ids
}

// Window is one example: obsLen+predLen consecutive frames of the agents
// present in all of them. Positions are laid out [agent][dim][step].
type Window struct {
	File       string
	StartFrame int
	Agents     []int
	Obs        [][][]float32
	Pred       [][][]float32
}

// Start returns each agent's first observed position.
func (w *Window) Start() [][]float32 {
	return w.column(w.Obs, 0)
}

// LastObs returns each agent's last observed position relative to Start.
func (w *Window) LastObs() [][]float32 {
	last := w.column(w.Obs, len(w.Obs[0][0])-1)
	start := w.Start()
	for a := range last {
		for d := range last[a] {
			last[a][d] -= start[a][d]
		}
	}
	return last
}

// Relative returns the per-step displacements of the predicted part,
// starting from the last observed position.
func (w *Window) Relative() [][][]float32 {
	return trajectory.ToRelative(w.column(w.Obs, len(w.Obs[0][0])-1), w.Pred)
}

func (w *Window) column(x [][][]float32, step int) [][]float32 {
	out := make([][]float32, len(x))
	for a := range x {
		out[a] = make([]float32, len(x[a]))
		for d := range x[a] {
			out[a][d] = x[a][d][step]
		}
	}
	return out
}

// NewTrajectoryDataset indexes the files matching pattern.
func NewTrajectoryDataset(pattern string, obsLen, predLen int) (*TrajectoryDataset, error) {
	if obsLen < 1 || predLen < 1 {
		return nil, errors.Errorf("obsLen and predLen must be >= 1, got %d and %d", obsLen, predLen)
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", pattern)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no files found matching pattern: %s", pattern)
	}
	d := &TrajectoryDataset{
		pattern: pattern,
		files:   files,
		obsLen:  obsLen,
		predLen: predLen,
	}
	for _, path := range files {
		ff, err := readFrames(path)
		if err != nil {
			return nil, err
		}
		d.frames = append(d.frames, ff)
	}
	d.buildIndex()
	klog.V(1).Infof("trajectory dataset %s: %d files, %d windows", pattern, len(files), len(d.index))
	return d, nil
}

func readFrames(path string) (*fileFrames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	byFrame := make(map[int]map[int][NumDims]float32)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := splitFields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2+NumDims {
			return nil, errors.Errorf("%s:%d: expected frame, agent, x, y; got %d fields", path, lineNo, len(fields))
		}
		frame, errFrame := parseID(fields[0])
		agent, errAgent := parseID(fields[1])
		if errFrame != nil || errAgent != nil {
			if lineNo == 1 {
				continue // header
			}
			return nil, errors.Errorf("%s:%d: invalid frame or agent id %q %q", path, lineNo, fields[0], fields[1])
		}
		if _, dup := byFrame[frame][agent]; dup {
			return nil, errors.Errorf("%s:%d: duplicate row for frame %d agent %d", path, lineNo, frame, agent)
		}
		var pos [NumDims]float32
		for k := range NumDims {
			v, err := parseFloat32(fields[2+k])
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: coordinate %d", path, lineNo, k)
			}
			pos[k] = v
		}
		if byFrame[frame] == nil {
			byFrame[frame] = make(map[int][NumDims]float32)
		}
		byFrame[frame][agent] = pos
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	ff := &fileFrames{path: path}
	for id := range byFrame {
		ff.ids = append(ff.ids, id)
	}
	sort.Ints(ff.ids)
	for _, id := range ff.ids {
		ff.agents = append(ff.agents, byFrame[id])
	}
	return ff, nil
}

// parseID accepts integer ids, also written as floats ("10.0"). Fractional
// ids are rejected.
func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, errors.Errorf("id %q is not an integer", s)
	}
	return int(v), nil
}

func (d *TrajectoryDataset) buildIndex() {
	span := d.obsLen + d.predLen
	for fi, ff := range d.frames {
		for start := 0; start+span <= len(ff.ids); start++ {
			if len(d.agentsIn(ff, start)) > 0 {
				d.index = append(d.index, windowRef{file: fi, frame: start})
			}
		}
	}
	d.order = make([]int, len(d.index))
	for i := range d.order {
		d.order[i] = i
	}
}

// agentsIn returns, sorted, the agents present in every frame of the window
// starting at frame position start.
func (d *TrajectoryDataset) agentsIn(ff *fileFrames, start int) []int {
	span := d.obsLen + d.predLen
	var agents []int
	for agent := range ff.agents[start] {
		present := true
		for k := 1; k < span && present; k++ {
			_, present = ff.agents[start+k][agent]
		}
		if present {
			agents = append(agents, agent)
		}
	}
	sort.Ints(agents)
	return agents
}

// Len returns the number of windows.
func (d *TrajectoryDataset) Len() int { return len(d.index) }

// Example returns window i, following the current shuffle order.
func (d *TrajectoryDataset) Example(i int) (*Window, error) {
	if i < 0 || i >= len(d.order) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(d.order))
	}
	ref := d.index[d.order[i]]
	ff := d.frames[ref.file]
	agents := d.agentsIn(ff, ref.frame)
	w := &Window{
		File:       ff.path,
		StartFrame: ff.ids[ref.frame],
		Agents:     agents,
		Obs:        make([][][]float32, len(agents)),
		Pred:       make([][][]float32, len(agents)),
	}
	for a, agent := range agents {
		w.Obs[a] = d.track(ff, agent, ref.frame, d.obsLen)
		w.Pred[a] = d.track(ff, agent, ref.frame+d.obsLen, d.predLen)
	}
	return w, nil
}

func (d *TrajectoryDataset) track(ff *fileFrames, agent, from, n int) [][]float32 {
	out := make([][]float32, NumDims)
	for k := range out {
		out[k] = make([]float32, n)
	}
	for t := range n {
		pos := ff.agents[from+t][agent]
		for k := range NumDims {
			out[k][t] = pos[k]
		}
	}
	return out
}

// Shuffle permutes the example order deterministically for seed.
func (d *TrajectoryDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Name returns the name of the dataset.
func (d *TrajectoryDataset) Name() string {
	return "TrajectoryDataset(" + d.pattern + ")"
}

// Batch is a set of windows concatenated along the agent axis.
type Batch struct {
	Start    [][]float32   // [agent][dim]
	LastObs  [][]float32   // [agent][dim], relative to Start
	Relative [][][]float32 // [agent][dim][predLen]
	Pred     [][][]float32 // [agent][dim][predLen], absolute ground truth
	Groups   [][2]int      // [start, end) agent range of each window
}

// Len returns the number of agents in the batch.
func (b *Batch) Len() int { return len(b.Start) }

// Batch concatenates the windows at indices.
func (d *TrajectoryDataset) Batch(indices []int) (*Batch, error) {
	b := &Batch{}
	for _, idx := range indices {
		w, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		first := b.Len()
		b.Start = append(b.Start, w.Start()...)
		b.LastObs = append(b.LastObs, w.LastObs()...)
		b.Relative = append(b.Relative, w.Relative()...)
		b.Pred = append(b.Pred, w.Pred...)
		b.Groups = append(b.Groups, [2]int{first, b.Len()})
	}
	return b, nil
}
