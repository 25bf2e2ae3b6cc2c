package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain creates a chain r-0 -> r-1 -> ... -> r-(n-1) via supersession.
func buildChain(t *testing.T, db *DB, n int) []string {
	t.Helper()
	ids := make([]string, n)
	ids[0] = "r-0"
	require.NoError(t, db.CreateRecord(testRecord("r-0", "version 0", CategoryFact)))
	for i := 1; i < n; i++ {
		ids[i] = fmt.Sprintf("r-%d", i)
		succ := testRecord(ids[i], fmt.Sprintf("version %d", i), CategoryFact)
		require.NoError(t, db.Supersede(ids[i-1], succ, SupersessionUpdate))
	}
	return ids
}

func TestGetChain_FromAnyMember(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 4)

	for _, start := range ids {
		chain, err := db.GetChain(start)
		require.NoError(t, err)
		require.Len(t, chain, 4, "from %s", start)
		for i, rec := range chain {
			assert.Equal(t, ids[i], rec.ID, "position %d from %s", i, start)
		}
	}
}

func TestGetCurrentAndOriginal_FromAnyMember(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 5)

	for _, start := range ids {
		cur, err := db.GetCurrent(start)
		require.NoError(t, err)
		assert.Equal(t, ids[len(ids)-1], cur.ID)

		orig, err := db.GetOriginal(start)
		require.NoError(t, err)
		assert.Equal(t, ids[0], orig.ID)
	}
}

func TestChainLength(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 3)

	n, err := db.ChainLength(ids[1])
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIsSuperseded(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 2)

	old, err := db.IsSuperseded(ids[0])
	require.NoError(t, err)
	assert.True(t, old)

	head, err := db.IsSuperseded(ids[1])
	require.NoError(t, err)
	assert.False(t, head)
}

func TestSupersede_SetsTypeOnOlderRecord(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.CreateRecord(testRecord("a", "v1", CategoryFact)))
	require.NoError(t, db.Supersede("a", testRecord("b", "v2", CategoryFact), SupersessionCorrection))

	old, err := db.GetRecord("a")
	require.NoError(t, err)
	assert.Equal(t, SupersessionCorrection, old.SupersessionType)
	require.NotNil(t, old.SupersededAt)

	head, err := db.GetRecord("b")
	require.NoError(t, err)
	assert.Equal(t, "a", head.SupersedesID)
	assert.Empty(t, head.SupersessionType)
	assert.Nil(t, head.SupersededAt)
}

func TestSupersede_FailsOnAlreadySuperseded(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.CreateRecord(testRecord("a", "v1", CategoryFact)))
	require.NoError(t, db.Supersede("a", testRecord("b", "v2", CategoryFact), SupersessionUpdate))

	err := db.Supersede("a", testRecord("c", "v3", CategoryFact), SupersessionUpdate)
	require.Error(t, err)

	// The failed attempt must not have inserted the successor.
	got, err := db.GetRecord("c")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteMiddleRecord_SplitsChain(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 4)

	require.NoError(t, db.DeleteRecord(ids[1]))

	// The deleted node's successor has its back-reference cleared.
	succ, err := db.GetRecord(ids[2])
	require.NoError(t, err)
	assert.Empty(t, succ.SupersedesID)

	// Walking from the head now stops at the split point.
	chain, err := db.GetChain(ids[3])
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, ids[2], chain[0].ID)
	assert.Equal(t, ids[3], chain[1].ID)

	// The orphaned root is now its own chain.
	chain, err = db.GetChain(ids[0])
	require.NoError(t, err)
	require.Len(t, chain, 1)
}

func TestGetChain_UnknownID(t *testing.T) {
	db := testDB(t)
	chain, err := db.GetChain("missing")
	require.NoError(t, err)
	assert.Nil(t, chain)
}

func TestChainTraversal_LongChainIsFast(t *testing.T) {
	db := testDB(t)
	ids := buildChain(t, db, 20)

	start := time.Now()
	chain, err := db.GetChain(ids[10])
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, chain, 20)
	assert.Less(t, elapsed, 100*time.Millisecond)
}
