package issuerstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/distributor-dispatch/dispatch"
)

func TestStore_ReplaceAndSnapshot(t *testing.T) {
	s := New()
	assert.Empty(t, s.Snapshot())

	issuers := []dispatch.IssuerCredential{{PublicKey: "a"}, {PublicKey: "b"}}
	s.Replace(issuers)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	keys := map[string]bool{}
	for _, c := range snap {
		keys[c.PublicKey] = true
	}
	assert.True(t, keys["a"])
	assert.True(t, keys["b"])
}

func TestStore_SnapshotIsDefensiveCopy(t *testing.T) {
	s := New()
	s.Replace([]dispatch.IssuerCredential{{PublicKey: "a"}})

	first := s.Snapshot()
	s.Replace([]dispatch.IssuerCredential{{PublicKey: "a"}, {PublicKey: "b"}})

	assert.Len(t, first, 1, "a snapshot taken before Replace must not observe the later set")
	assert.Len(t, s.Snapshot(), 2)
}
