package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/model"
)

func TestStartTimer_PersistsFreshOrigin(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()

	timer := StartTimer(context.Background(), store, 7, "EX1", "M1", 600, clock.Now, zerolog.Nop())

	marker, ok := store.marker(7)
	require.True(t, ok)
	assert.Equal(t, model.SessionMarker{ExamCode: "EX1", MockTestCode: "M1", StartedAt: t0, DurationSeconds: 600}, marker)
	assert.Equal(t, t0, timer.StartedAt())
	assert.Equal(t, 10*time.Minute, timer.TimeLeft(clock.Now()))
}

func TestStartTimer_RestoresMatchingOrigin(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	origin := t0.Add(-4 * time.Minute)
	require.NoError(t, store.Save(context.Background(), 7, model.SessionMarker{
		ExamCode: "EX1", MockTestCode: "M1", StartedAt: origin, DurationSeconds: 300,
	}))

	timer := StartTimer(context.Background(), store, 7, "EX1", "M1", 600, clock.Now, zerolog.Nop())

	assert.Equal(t, origin, timer.StartedAt())
	assert.Equal(t, 600, timer.DurationSeconds())
	assert.Equal(t, 6*time.Minute, timer.TimeLeft(clock.Now()))
}

func TestStartTimer_OverwritesOtherSelection(t *testing.T) {
	cases := []struct {
		name string
		exam string
		mock string
	}{
		{"other exam", "EX2", "M1"},
		{"other mock form", "EX1", "M2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			store := newMemoryStore()
			require.NoError(t, store.Save(context.Background(), 7, model.SessionMarker{
				ExamCode: "EX1", MockTestCode: "M1", StartedAt: t0.Add(-time.Hour), DurationSeconds: 600,
			}))

			timer := StartTimer(context.Background(), store, 7, tc.exam, tc.mock, 600, clock.Now, zerolog.Nop())

			assert.Equal(t, t0, timer.StartedAt())
			marker, ok := store.marker(7)
			require.True(t, ok)
			assert.Equal(t, tc.exam, marker.ExamCode)
			assert.Equal(t, tc.mock, marker.MockTestCode)
		})
	}
}

func TestStartTimer_StoreFailureStillCountsDown(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	store.loadErr = errors.New("redis: connection refused")

	timer := StartTimer(context.Background(), store, 7, "EX1", "", 60, clock.Now, zerolog.Nop())

	assert.Equal(t, t0, timer.StartedAt())
	assert.Equal(t, time.Minute, timer.TimeLeft(clock.Now()))
}

func TestTimer_TickFiresOnce(t *testing.T) {
	clock := newFakeClock()
	timer := StartTimer(context.Background(), newMemoryStore(), 7, "EX1", "", 60, clock.Now, zerolog.Nop())

	clock.Advance(59 * time.Second)
	left, expired := timer.Tick(clock.Now())
	assert.Equal(t, time.Second, left)
	assert.False(t, expired)

	clock.Advance(5 * time.Second)
	left, expired = timer.Tick(clock.Now())
	assert.Zero(t, left)
	assert.True(t, expired)

	_, expired = timer.Tick(clock.Now())
	assert.False(t, expired)
	assert.Zero(t, timer.TimeLeft(clock.Now().Add(time.Hour)), "time left never goes negative")
}

func TestTimer_StopClearsMarkerOnce(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore()
	timer := StartTimer(context.Background(), store, 7, "EX1", "", 60, clock.Now, zerolog.Nop())

	require.NoError(t, timer.Stop(context.Background()))
	require.NoError(t, timer.Stop(context.Background()))

	_, ok := store.marker(7)
	assert.False(t, ok)
	assert.Equal(t, 1, store.clears)

	clock.Advance(2 * time.Minute)
	_, expired := timer.Tick(clock.Now())
	assert.False(t, expired, "stopped timer never fires")
}
