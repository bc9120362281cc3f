// Package datasets loads pedestrian trajectory files and cuts them into
// fixed-length windows suitable for the IOC model.
//
// Files follow the common ETH/UCY layout: one observation per line with
// frame id, agent id, x and y, separated by whitespace, commas or tabs. A
// leading header line is skipped.
//
// Layout and intended usage:
//
// TrajectoryDataset
//   - Finds files by glob pattern and indexes their frames once at creation.
//   - Each example is a Window of obsLen+predLen consecutive frames holding
//     every agent present in all of them. Agents of one window form one
//     social group.
//   - Batch concatenates windows and reports the group boundaries.
package datasets

// Dataset is the interface the driver needs from a trajectory source.
type Dataset interface {
	Len() int
	Example(i int) (*Window, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)
}
