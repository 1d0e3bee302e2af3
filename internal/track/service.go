package track

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend-broadhead/internal/db"
	"backend-broadhead/internal/shared/geo"
	"backend-broadhead/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("track not found")
	ErrNotActive    = errors.New("track is not active")
	ErrNotOwner     = errors.New("track belongs to another user")
	ErrActiveExists = errors.New("an active track already exists")
)

var nowMs = func() int64 { return time.Now().UnixMilli() }

type Service struct {
	db  db.Pool
	hub *stream.Hub
}

func NewService(db db.Pool, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

// Start opens a new active track for the owner. A second active track for
// the same owner is rejected; the partial unique index on tracks backs the
// in-transaction check.
func (s *Service) Start(ctx context.Context, ownerID, name, description string) (Track, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Track{}, err
	}
	defer tx.Rollback(ctx)

	var active bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tracks WHERE owner_id=$1 AND is_active)
	`, ownerID).Scan(&active)
	if err != nil {
		return Track{}, err
	}
	if active {
		return Track{}, ErrActiveExists
	}

	now := nowMs()
	t := Track{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Path:        []TrackPoint{},
		StartTimeMs: now,
		EndTimeMs:   now,
		IsActive:    true,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO tracks (id, owner_id, name, description, path, start_time_ms, end_time_ms)
		VALUES ($1,$2,$3,$4,'[]',$5,$6)
		RETURNING created_at
	`, t.ID, t.OwnerID, t.Name, t.Description, t.StartTimeMs, t.EndTimeMs)
	if err := row.Scan(&t.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Track{}, ErrActiveExists
		}
		return Track{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Track{}, err
	}
	return t, nil
}

// AddPoint appends one GPS sample to an active track owned by the caller.
// The row is locked for the duration of the transaction so concurrent
// appends to the same track cannot drop a distance increment.
func (s *Service) AddPoint(ctx context.Context, ownerID, trackID string, input TrackPoint) (Track, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Track{}, err
	}
	defer tx.Rollback(ctx)

	t, err := lockTrack(ctx, tx, trackID)
	if err != nil {
		return Track{}, err
	}
	if t.OwnerID != ownerID {
		return Track{}, ErrNotOwner
	}
	if !t.IsActive {
		return Track{}, ErrNotActive
	}

	input.TimestampMs = nowMs()
	if n := len(t.Path); n > 0 {
		last := t.Path[n-1]
		t.DistanceM += geo.HaversineM(last.Lat, last.Lng, input.Lat, input.Lng)
	}
	t.Path = append(t.Path, input)
	t.EndTimeMs = input.TimestampMs

	raw, err := json.Marshal(t.Path)
	if err != nil {
		return Track{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE tracks SET path=$2, distance_m=$3, end_time_ms=$4 WHERE id=$1
	`, trackID, raw, t.DistanceM, t.EndTimeMs)
	if err != nil {
		return Track{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Track{}, err
	}

	if s.hub != nil {
		payload, _ := json.Marshal(input)
		s.hub.Broadcast(trackID, payload)
	}
	return t, nil
}

// Stop finalizes a track: duration, average speed and elevation totals are
// computed from the accumulated path and the track leaves the active state.
// Stopping an already-stopped track recomputes from the same frozen path.
func (s *Service) Stop(ctx context.Context, ownerID, trackID string) (Track, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Track{}, err
	}
	defer tx.Rollback(ctx)

	t, err := lockTrack(ctx, tx, trackID)
	if err != nil {
		return Track{}, err
	}
	if t.OwnerID != ownerID {
		return Track{}, ErrNotOwner
	}

	t.DurationSec = float64(t.EndTimeMs-t.StartTimeMs) / 1000
	t.AvgSpeedMps = 0
	if t.DurationSec > 0 {
		t.AvgSpeedMps = t.DistanceM / t.DurationSec
	}
	t.ElevationGainM, t.ElevationLossM = elevationStats(t.Path)
	t.IsActive = false

	_, err = tx.Exec(ctx, `
		UPDATE tracks
		SET duration_sec=$2, avg_speed_mps=$3, elevation_gain_m=$4, elevation_loss_m=$5, is_active=FALSE
		WHERE id=$1
	`, trackID, t.DurationSec, t.AvgSpeedMps, t.ElevationGainM, t.ElevationLossM)
	if err != nil {
		return Track{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Track{}, err
	}
	return t, nil
}

// Delete removes the track row outright, active or not. In-flight appends
// against the id fail with ErrNotFound afterwards.
func (s *Service) Delete(ctx context.Context, ownerID, trackID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT owner_id FROM tracks WHERE id=$1 FOR UPDATE`, trackID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return ErrNotOwner
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tracks WHERE id=$1`, trackID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Track, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, description, path, distance_m, duration_sec, avg_speed_mps,
		       elevation_gain_m, elevation_loss_m, start_time_ms, end_time_ms, is_active, created_at
		FROM tracks WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := []Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// Active returns the owner's single recording track, or nil when there is
// none.
func (s *Service) Active(ctx context.Context, ownerID string) (*Track, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, description, path, distance_m, duration_sec, avg_speed_mps,
		       elevation_gain_m, elevation_loss_m, start_time_ms, end_time_ms, is_active, created_at
		FROM tracks WHERE owner_id=$1 AND is_active
		LIMIT 1
	`, ownerID)
	t, err := scanTrack(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func lockTrack(ctx context.Context, tx pgx.Tx, id string) (Track, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, owner_id, name, description, path, distance_m, duration_sec, avg_speed_mps,
		       elevation_gain_m, elevation_loss_m, start_time_ms, end_time_ms, is_active, created_at
		FROM tracks WHERE id=$1
		FOR UPDATE
	`, id)
	return scanTrack(row)
}

func scanTrack(row pgx.Row) (Track, error) {
	var t Track
	var raw []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &raw, &t.DistanceM, &t.DurationSec,
		&t.AvgSpeedMps, &t.ElevationGainM, &t.ElevationLossM, &t.StartTimeMs, &t.EndTimeMs, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Track{}, ErrNotFound
	}
	if err != nil {
		return Track{}, err
	}
	if err := json.Unmarshal(raw, &t.Path); err != nil {
		return Track{}, err
	}
	return t, nil
}

// elevationStats walks adjacent path pairs; a pair contributes only when
// both samples carry an altitude. Totals are reported only when strictly
// positive.
func elevationStats(path []TrackPoint) (gain, loss *float64) {
	var up, down float64
	for i := 1; i < len(path); i++ {
		prev, cur := path[i-1].AltitudeM, path[i].AltitudeM
		if prev == nil || cur == nil {
			continue
		}
		d := *cur - *prev
		if d > 0 {
			up += d
		} else if d < 0 {
			down += -d
		}
	}
	if up > 0 {
		gain = &up
	}
	if down > 0 {
		loss = &down
	}
	return gain, loss
}
