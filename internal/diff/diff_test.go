package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type record struct {
	ID  int
	Val string
}

type tagged struct {
	ID   int
	Tags []string
}

func (t tagged) Equal(o tagged) bool {
	if t.ID != o.ID || len(t.Tags) != len(o.Tags) {
		return false
	}
	for i := range t.Tags {
		if t.Tags[i] != o.Tags[i] {
			return false
		}
	}
	return true
}

func TestCompare_IdenticalCollections_Unchanged(t *testing.T) {
	t.Parallel()

	a := []record{{1, "a"}, {2, "b"}}
	b := []record{{1, "a"}, {2, "b"}}

	res := Compare(a, b, Equal[record])

	assert.False(t, res.Changed)
	assert.Nil(t, res.Delta)
}

func TestCompare_BothEmpty_Unchanged(t *testing.T) {
	t.Parallel()

	res := Compare([]record{}, nil, Equal[record])

	assert.False(t, res.Changed)
}

func TestCompare_LengthDiffers_Changed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cached  []record
		current []record
		delta   []record
	}{
		{"added", []record{{1, "a"}}, []record{{1, "a"}, {2, "b"}}, []record{{2, "b"}}},
		{"removed", []record{{1, "a"}, {2, "b"}}, []record{{1, "a"}}, []record{{2, "b"}}},
		{"from empty", nil, []record{{1, "a"}}, []record{{1, "a"}}},
		{"to empty", []record{{1, "a"}}, []record{}, []record{{1, "a"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := Compare(tc.cached, tc.current, Equal[record])
			assert.True(t, res.Changed)
			assert.Equal(t, tc.delta, res.Delta)
		})
	}
}

func TestCompare_FieldChange_DeltaHoldsNewThenOld(t *testing.T) {
	t.Parallel()

	cached := []record{{1, "a"}, {2, "b"}}
	current := []record{{1, "a"}, {2, "c"}}

	res := Compare(cached, current, Equal[record])

	assert.True(t, res.Changed)
	assert.Equal(t, []record{{2, "c"}, {2, "b"}}, res.Delta)
}

func TestCompare_Reorder_ChangedWithEmptyDelta(t *testing.T) {
	t.Parallel()

	cached := []record{{1, "a"}, {2, "b"}}
	current := []record{{2, "b"}, {1, "a"}}

	res := Compare(cached, current, Equal[record])

	assert.True(t, res.Changed)
	assert.NotNil(t, res.Delta)
	assert.Empty(t, res.Delta)
}

func TestCompare_DuplicatesMatchedByEquality(t *testing.T) {
	t.Parallel()

	cached := []record{{1, "a"}, {1, "a"}}
	current := []record{{1, "a"}}

	res := Compare(cached, current, Equal[record])

	assert.True(t, res.Changed)
	assert.Empty(t, res.Delta)
}

func TestCompare_Deterministic(t *testing.T) {
	t.Parallel()

	cached := []record{{1, "a"}, {2, "b"}, {3, "c"}}
	current := []record{{3, "c"}, {4, "d"}, {2, "x"}}

	first := Compare(cached, current, Equal[record])
	for i := 0; i < 5; i++ {
		again := Compare(cached, current, Equal[record])
		assert.Equal(t, first.Changed, again.Changed)
		assert.ElementsMatch(t, first.Delta, again.Delta)
	}
	assert.ElementsMatch(t, []record{{4, "d"}, {2, "x"}, {1, "a"}, {2, "b"}}, first.Delta)
}

func TestCompareRecords_UsesEqualMethod(t *testing.T) {
	t.Parallel()

	cached := []tagged{{ID: 1, Tags: []string{"pvp"}}}
	same := []tagged{{ID: 1, Tags: []string{"pvp"}}}
	edited := []tagged{{ID: 1, Tags: []string{"pvp", "eco"}}}

	assert.False(t, CompareRecords(cached, same).Changed)

	res := CompareRecords(cached, edited)
	assert.True(t, res.Changed)
	assert.Len(t, res.Delta, 2)
}
