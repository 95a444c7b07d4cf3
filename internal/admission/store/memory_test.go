package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/testutil"
)

func TestMemory_GetPut(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	t.Run("absent key returns nil", func(t *testing.T) {
		rec, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k1", "v1"))

		rec, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "v1", rec.Value)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("put bumps version", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "k1", "v2"))

		rec, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "v2", rec.Value)
		assert.Equal(t, int64(2), rec.Version)
	})
}

func TestMemory_CompareAndPut(t *testing.T) {
	ctx := context.Background()

	t.Run("create-only succeeds on absent key", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.CompareAndPut(ctx, "k", "v", VersionAbsent))

		rec, _ := s.Get(ctx, "k")
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("create-only conflicts on existing key", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.Put(ctx, "k", "v"))

		err := s.CompareAndPut(ctx, "k", "v2", VersionAbsent)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("matching version succeeds", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.Put(ctx, "k", "v"))
		require.NoError(t, s.CompareAndPut(ctx, "k", "v2", 1))

		rec, _ := s.Get(ctx, "k")
		assert.Equal(t, "v2", rec.Value)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("stale version conflicts without mutation", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.Put(ctx, "k", "v"))
		require.NoError(t, s.Put(ctx, "k", "v2")) // version now 2

		err := s.CompareAndPut(ctx, "k", "v3", 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		rec, _ := s.Get(ctx, "k")
		assert.Equal(t, "v2", rec.Value)
	})
}

func TestMemory_Delete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "v"))
	require.NoError(t, s.Delete(ctx, "k"))

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Deleting an absent key is a no-op
	require.NoError(t, s.Delete(ctx, "k"))
}

// Exactly one concurrent CompareAndPut against the same version may win.
func TestMemory_CompareAndPut_Concurrent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", 0))

	result := testutil.RunConcurrent(50, func(idx int) error {
		return s.CompareAndPut(ctx, "k", idx, 1)
	})

	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(49), result.Conflicts)
}
