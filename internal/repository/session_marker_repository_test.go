package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/model"
)

func TestSessionMarkerRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewSessionMarkerRepository(rdb)
	ctx := context.Background()

	got, err := repo.Load(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)

	marker := model.SessionMarker{
		ExamCode:        "UTBK-1",
		MockTestCode:    "M1",
		StartedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		DurationSeconds: 5400,
	}
	require.NoError(t, repo.Save(ctx, 5, marker))
	assert.Equal(t, 90*time.Minute+markerGrace, mr.TTL("student:5:active_exam"))

	got, err = repo.Load(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, marker.StartedAt.Equal(got.StartedAt))
	assert.True(t, got.Matches("UTBK-1", "M1"))

	require.NoError(t, repo.Clear(ctx, 5))
	assert.False(t, mr.Exists("student:5:active_exam"))
}

func TestSessionMarkerRepository_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, mr.Set("student:5:active_exam", "1698374820"))

	_, err := NewSessionMarkerRepository(rdb).Load(context.Background(), 5)
	assert.Error(t, err)
}
