package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// markerGrace keeps a marker around a while after its countdown ends so a
// late reconnect still finds the origin and auto-submits instead of restarting.
const markerGrace = time.Hour

// SessionMarkerRepository stores each student's active exam countdown origin in Redis.
type SessionMarkerRepository struct {
	rdb *redis.Client
}

// NewSessionMarkerRepository creates a new SessionMarkerRepository.
func NewSessionMarkerRepository(rdb *redis.Client) *SessionMarkerRepository {
	return &SessionMarkerRepository{rdb: rdb}
}

// Load returns the stored marker, or nil if the student has none.
func (r *SessionMarkerRepository) Load(ctx context.Context, studentID int) (*model.SessionMarker, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.StudentActiveExamKey(studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session marker: %w", err)
	}

	var m model.SessionMarker
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode session marker: %w", err)
	}
	return &m, nil
}

// Save replaces the student's marker. It expires a grace period after the
// countdown would end.
func (r *SessionMarkerRepository) Save(ctx context.Context, studentID int, marker model.SessionMarker) error {
	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode session marker: %w", err)
	}

	ttl := time.Duration(marker.DurationSeconds)*time.Second + markerGrace
	if err := r.rdb.Set(ctx, config.CacheKey.StudentActiveExamKey(studentID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set session marker: %w", err)
	}
	return nil
}

// Clear removes the student's marker.
func (r *SessionMarkerRepository) Clear(ctx context.Context, studentID int) error {
	if err := r.rdb.Del(ctx, config.CacheKey.StudentActiveExamKey(studentID)).Err(); err != nil {
		return fmt.Errorf("delete session marker: %w", err)
	}
	return nil
}
