package index

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAll(t *testing.T) []Index {
	t.Helper()
	var all []Index
	for _, k := range Kinds() {
		idx, err := New(k, WithDegree(4))
		require.NoError(t, err)
		require.Equal(t, k, idx.Kind())
		all = append(all, idx)
	}
	return all
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("skiplist")
	assert.ErrorIs(t, err, ErrUnknownKind)

	k, err := ParseKind(" BTree ")
	require.NoError(t, err)
	assert.Equal(t, KindBTree, k)

	_, err = ParseKind("trie")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestBasicContract(t *testing.T) {
	for _, idx := range newAll(t) {
		t.Run(string(idx.Kind()), func(t *testing.T) {
			assert.Empty(t, idx.Lookup("missing"))
			assert.NotNil(t, idx.Lookup("missing"))

			idx.Insert("Herbert", "b2")
			idx.Insert("Herbert", "b1")
			idx.Insert("Herbert", "b1") // duplicate
			idx.Insert("Asimov", "b3")
			idx.Insert("Le Guin", "b4")

			assert.Equal(t, 4, idx.Len())
			assert.Equal(t, []string{"b1", "b2"}, idx.Lookup("Herbert"))

			idx.Delete("Herbert", "b9") // absent id
			idx.Delete("Nobody", "b1")  // absent key
			assert.Equal(t, 4, idx.Len())

			idx.Delete("Herbert", "b1")
			assert.Equal(t, []string{"b2"}, idx.Lookup("Herbert"))
			assert.Equal(t, 3, idx.Len())

			assert.Equal(t, []string{"b3", "b2"}, idx.Range("A", "I"))
			assert.Equal(t, []string{"b3", "b2", "b4"}, idx.Range("Asimov", "Le Guin"))
			assert.Empty(t, idx.Range("Z", "A"))
			assert.Empty(t, idx.Range("M", "Z"))
		})
	}
}

// Every variant must agree on lookup and range results at every step of the same sequence.
func TestVariantsAreLogicallyEquivalent(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			r := rand.New(rand.NewPCG(seed, 99))
			all := newAll(t)
			keys := []string{"Austen", "Borges", "Calvino", "Dickens", "Eco", "Eco", "Flaubert"}

			for step := 0; step < 600; step++ {
				key := keys[r.IntN(len(keys))]
				id := fmt.Sprintf("book-%02d", r.IntN(40))
				insert := r.IntN(3) != 0
				for _, idx := range all {
					if insert {
						idx.Insert(key, id)
					} else {
						idx.Delete(key, id)
					}
				}

				probe := keys[r.IntN(len(keys))]
				want := all[0].Lookup(probe)
				lo, hi := keys[r.IntN(len(keys))], keys[r.IntN(len(keys))]
				wantRange := all[0].Range(lo, hi)
				for _, idx := range all[1:] {
					require.Equal(t, want, idx.Lookup(probe), "step %d lookup %q on %s", step, probe, idx.Kind())
					require.Equal(t, wantRange, idx.Range(lo, hi), "step %d range on %s", step, idx.Kind())
					require.Equal(t, all[0].Len(), idx.Len(), "step %d len on %s", step, idx.Kind())
				}
			}
		})
	}
}

func TestOrdered(t *testing.T) {
	assert.True(t, KindBTree.Ordered())
	assert.True(t, KindSorted.Ordered())
	assert.False(t, KindHash.Ordered())
	assert.False(t, KindLinear.Ordered())
}
