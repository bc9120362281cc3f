package trajectory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToAbsoluteAndBack(t *testing.T) {
	start := [][]float32{{1, 2}, {-1, 0}}
	lastObs := [][]float32{{0.5, 0.5}, {0, 1}}
	rel := [][][]float32{
		{{1, 1, 1}, {0, -1, 2}},
		{{0, 0, 0}, {3, 0, -3}},
	}
	abs := ToAbsolute(start, lastObs, rel)
	require.Equal(t, [][][]float32{
		{{2.5, 3.5, 4.5}, {2.5, 1.5, 3.5}},
		{{-1, -1, -1}, {4, 4, 1}},
	}, abs)

	origin := [][]float32{{1.5, 2.5}, {-1, 1}}
	require.Equal(t, rel, ToRelative(origin, abs))

	noObs := ToAbsolute(start, nil, rel)
	require.Equal(t, float32(2), noObs[0][0][0])
}

func TestFlatten(t *testing.T) {
	f, err := Flatten3([][][]float32{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}, {{9, 10}, {11, 12}}})
	require.NoError(t, err)
	require.Equal(t, []int{3, 2, 2}, f.Dims)
	require.Equal(t, float32(7), f.Data[6])
	require.Equal(t, []int{3, 2, 2}, f.Tensor().Shape().Dimensions)

	_, err = Flatten3([][][]float32{{{1, 2}}, {{1}}})
	require.Error(t, err)

	m, err := Flatten2([][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, m.Dims)
	_, err = Flatten2([][]float32{{1, 2}, {3}})
	require.Error(t, err)
	_, err = Flatten2(nil)
	require.Error(t, err)
}

func TestScene(t *testing.T) {
	s := NewScene(1, 3, 4, 5)
	require.NoError(t, s.Validate())
	require.Equal(t, []int{1, 3, 4, 5}, s.Tensor().Shape().Dimensions)

	s.Data = s.Data[1:]
	require.Error(t, s.Validate())
}

func TestGroupIDs(t *testing.T) {
	ids, err := GroupIDs(4, nil)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 0, 0, 0}, ids)

	ids, err = GroupIDs(6, [][2]int{{3, 5}, {0, 2}})
	require.NoError(t, err)
	// ids follow the caller's range order; uncovered agents come after.
	require.Equal(t, []int32{1, 1, 2, 0, 0, 3}, ids)

	_, err = GroupIDs(4, [][2]int{{0, 3}, {2, 4}})
	require.ErrorContains(t, err, "overlaps")
	_, err = GroupIDs(4, [][2]int{{0, 5}})
	require.Error(t, err)
	_, err = GroupIDs(4, [][2]int{{2, 2}})
	require.Error(t, err)

	// Errors name the range as the caller passed it, not its sorted position.
	_, err = GroupIDs(6, [][2]int{{4, 6}, {0, 9}})
	require.ErrorContains(t, err, "group 1 range [0, 9)")
	_, err = GroupIDs(6, [][2]int{{3, 5}, {4, 6}, {0, 2}})
	require.ErrorContains(t, err, "group 1 range [4, 6) overlaps group 0")
}
