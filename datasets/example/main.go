package main

// Example command that loads a trajectory dataset, cuts it into windows and
// converts a small batch into gomlx tensors.
//
// Usage:
//   go run ./datasets/example -dir path/to/eth
//
// The directory must hold ETH/UCY style files (frame agent x y per line).

import (
	"flag"
	"fmt"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/Noofbiz/desire/datasets"
	"github.com/Noofbiz/desire/trajectory"
)

func main() {
	dir := flag.String("dir", "../assets/eth", "directory holding trajectory files")
	obsLen := flag.Int("obs", 8, "observed steps per window")
	predLen := flag.Int("pred", 12, "predicted steps per window")
	flag.Parse()

	files, err := datasets.FindTrajectoryFiles(*dir)
	if err != nil {
		klog.Fatalf("failed to find trajectory files: %v", err)
	}
	pattern := filepath.Join(*dir, "*"+filepath.Ext(files[0]))
	ds, err := datasets.NewTrajectoryDataset(pattern, *obsLen, *predLen)
	if err != nil {
		klog.Fatalf("failed to load trajectory dataset: %v", err)
	}
	fmt.Printf("Using trajectory pattern: %s\n", pattern)
	fmt.Printf("Total windows available: %d\n", ds.Len())

	n := min(4, ds.Len())
	if n == 0 {
		return
	}
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	batch, err := ds.Batch(indices)
	if err != nil {
		klog.Fatalf("failed to build batch: %v", err)
	}
	fmt.Printf("Batch of %d windows: %d agents, groups %v\n", n, batch.Len(), batch.Groups)

	rel, err := trajectory.Flatten3(batch.Relative)
	if err != nil {
		klog.Fatalf("failed to flatten relative trajectories: %v", err)
	}
	t := rel.Tensor()
	fmt.Printf("Created relative trajectory tensor: %s\n", t.Shape())
}
