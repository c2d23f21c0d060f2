package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezn-project/rezn/internal/model"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDesiredGetMissingReturnsNotFound(t *testing.T) {
	s := open(t)
	_, err := s.GetDesired("desired")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDesiredPutThenGetRoundTrips(t *testing.T) {
	s := open(t)
	require.NoError(t, s.PutDesired("desired", []byte(`{"a":[]}`)))

	got, err := s.GetDesired("desired")
	require.NoError(t, err)
	assert.Equal(t, `{"a":[]}`, string(got))
}

func TestSecretKeysListsAllKeysSorted(t *testing.T) {
	s := open(t)
	require.NoError(t, s.PutSecret("zeta", []byte("z")))
	require.NoError(t, s.PutSecret("alpha", []byte("a")))

	keys, err := s.SecretKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, keys)
}

func TestDeleteSecretReportsExistence(t *testing.T) {
	s := open(t)
	require.NoError(t, s.PutSecret("k", []byte("v")))

	existed, err := s.DeleteSecret("k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.DeleteSecret("k")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.GetSecret("k")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestUpdateDesiredIsAtomicAcrossConcurrentCallers(t *testing.T) {
	s := open(t)

	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_ = s.UpdateDesired("desired", func(existing []byte, found bool) ([]byte, error) {
				m := map[string]int{}
				if found {
					_ = json.Unmarshal(existing, &m)
				}
				m[string(rune('a'+i))] = i
				return json.Marshal(m)
			})
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	raw, err := s.GetDesired("desired")
	require.NoError(t, err)
	var m map[string]int
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Len(t, m, n)
}
