package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeTrajectories writes a trajectory file with an optional header.
func writeTrajectories(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	if header != "" {
		if _, err := f.WriteString(header + "\n"); err != nil {
			t.Fatalf("failed to write header: %v", err)
		}
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

func TestTrajectoryDataset_Windows(t *testing.T) {
	tmp := t.TempDir()

	// agent 1 walks (t, 2t) over frames 0..40, agent 2 leaves after frame 20.
	writeTrajectories(t, filepath.Join(tmp, "a.txt"), "frame agent x y", []string{
		"0 1 0 0",
		"0 2 5 5",
		"10 1 1 2",
		"10 2 5 6",
		"20 1 2 4",
		"20 2 5 7",
		"30 1 3 6",
		"40 1 4 8",
	})
	// two agents side by side for four frames, comma separated, float ids.
	writeTrajectories(t, filepath.Join(tmp, "b.txt"), "", []string{
		"1.0,7.0,0,0",
		"1.0,8.0,0,1",
		"2.0,7.0,1,0",
		"2.0,8.0,1,1",
		"3.0,7.0,2,0",
		"3.0,8.0,2,1",
		"4.0,7.0,3,0",
		"4.0,8.0,3,1",
	})

	ds, err := NewTrajectoryDataset(filepath.Join(tmp, "*.txt"), 2, 2)
	if err != nil {
		t.Fatalf("NewTrajectoryDataset failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("expected 3 windows (2 from a.txt, 1 from b.txt), got %d", ds.Len())
	}

	w, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0) failed: %v", err)
	}
	if !reflect.DeepEqual(w.Agents, []int{1}) {
		t.Fatalf("expected only agent 1 in first window, got %v", w.Agents)
	}
	if !reflect.DeepEqual(w.Obs[0], [][]float32{{0, 1}, {0, 2}}) {
		t.Errorf("unexpected obs: %v", w.Obs[0])
	}
	if !reflect.DeepEqual(w.Pred[0], [][]float32{{2, 3}, {4, 6}}) {
		t.Errorf("unexpected pred: %v", w.Pred[0])
	}
	if !reflect.DeepEqual(w.LastObs(), [][]float32{{1, 2}}) {
		t.Errorf("unexpected last obs: %v", w.LastObs())
	}
	if !reflect.DeepEqual(w.Relative(), [][][]float32{{{1, 1}, {2, 2}}}) {
		t.Errorf("unexpected relative: %v", w.Relative())
	}

	b, err := ds.Batch([]int{0, 2})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 agents in batch, got %d", b.Len())
	}
	if !reflect.DeepEqual(b.Groups, [][2]int{{0, 1}, {1, 3}}) {
		t.Errorf("unexpected groups: %v", b.Groups)
	}
	if !reflect.DeepEqual(b.Start[2], []float32{0, 1}) {
		t.Errorf("unexpected start for agent 8: %v", b.Start[2])
	}

	if _, err := ds.Example(3); err == nil {
		t.Errorf("expected out of range error")
	}
}

func TestTrajectoryDataset_ShuffleDeterministic(t *testing.T) {
	tmp := t.TempDir()
	var rows []string
	for f := 0; f < 20; f++ {
		rows = append(rows, formatRow(f, 1, float64(f), 0))
	}
	writeTrajectories(t, filepath.Join(tmp, "c.txt"), "", rows)

	order := func(seed int64) []int {
		ds, err := NewTrajectoryDataset(filepath.Join(tmp, "c.txt"), 2, 3)
		if err != nil {
			t.Fatalf("NewTrajectoryDataset failed: %v", err)
		}
		ds.Shuffle(seed)
		var starts []int
		for i := 0; i < ds.Len(); i++ {
			w, err := ds.Example(i)
			if err != nil {
				t.Fatalf("Example(%d) failed: %v", i, err)
			}
			starts = append(starts, w.StartFrame)
		}
		return starts
	}
	a, b := order(11), order(11)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed gave different orders: %v vs %v", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 windows, got %d", len(a))
	}
}

func TestTrajectoryDataset_Errors(t *testing.T) {
	tmp := t.TempDir()
	if _, err := NewTrajectoryDataset(filepath.Join(tmp, "*.txt"), 2, 2); err == nil {
		t.Errorf("expected error for empty pattern match")
	}
	if _, err := NewTrajectoryDataset(filepath.Join(tmp, "*.txt"), 0, 2); err == nil {
		t.Errorf("expected error for obsLen 0")
	}

	writeTrajectories(t, filepath.Join(tmp, "bad.txt"), "", []string{"0 1 0 0", "1 1 x 0"})
	if _, err := NewTrajectoryDataset(filepath.Join(tmp, "bad.txt"), 1, 1); err == nil {
		t.Errorf("expected parse error")
	}

	writeTrajectories(t, filepath.Join(tmp, "short.txt"), "", []string{"0 1 0"})
	if _, err := NewTrajectoryDataset(filepath.Join(tmp, "short.txt"), 1, 1); err == nil {
		t.Errorf("expected error for missing coordinate")
	}

	writeTrajectories(t, filepath.Join(tmp, "dup.txt"), "", []string{"0 1 0 0", "0 2 1 1", "0 1 5 5"})
	_, err := NewTrajectoryDataset(filepath.Join(tmp, "dup.txt"), 1, 1)
	if err == nil || !strings.Contains(err.Error(), "dup.txt:3") {
		t.Errorf("expected duplicate row error on line 3, got %v", err)
	}

	writeTrajectories(t, filepath.Join(tmp, "frac.txt"), "", []string{"0 1 0 0", "1 1.5 1 1"})
	_, err = NewTrajectoryDataset(filepath.Join(tmp, "frac.txt"), 1, 1)
	if err == nil || !strings.Contains(err.Error(), "frac.txt:2") {
		t.Errorf("expected fractional id error on line 2, got %v", err)
	}

	if _, err := FindTrajectoryFiles(tmp); err != nil {
		t.Errorf("expected files in %s: %v", tmp, err)
	}
}

func formatRow(frame, agent int, x, y float64) string {
	return fmt.Sprintf("%d %d %.3f %.3f", frame, agent, x, y)
}
