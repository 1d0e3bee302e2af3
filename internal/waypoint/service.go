package waypoint

import (
	"context"
	"errors"

	"backend-broadhead/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound = errors.New("waypoint not found")
	ErrNotOwner = errors.New("waypoint belongs to another user")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, input Waypoint) (Waypoint, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO waypoints (id, owner_id, name, kind, notes, location, elevation_m)
		VALUES ($1,$2,$3,$4,$5, ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography, $8)
		RETURNING created_at
	`, input.ID, input.OwnerID, input.Name, input.Kind, input.Notes, input.Lng, input.Lat, input.ElevationM)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Waypoint{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (Waypoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, kind, notes, ST_Y(location::geometry), ST_X(location::geometry),
		       elevation_m, created_at
		FROM waypoints WHERE id=$1
	`, id)
	var wp Waypoint
	err := row.Scan(&wp.ID, &wp.OwnerID, &wp.Name, &wp.Kind, &wp.Notes, &wp.Lat, &wp.Lng, &wp.ElevationM, &wp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Waypoint{}, ErrNotFound
	}
	if err != nil {
		return Waypoint{}, err
	}
	return wp, nil
}

// Update patches the non-zero fields of an owned waypoint. The owner check
// runs before any write.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch Waypoint) (Waypoint, error) {
	wp, err := s.Get(ctx, id)
	if err != nil {
		return Waypoint{}, err
	}
	if wp.OwnerID != ownerID {
		return Waypoint{}, ErrNotOwner
	}

	if patch.Name != "" {
		wp.Name = patch.Name
	}
	if patch.Kind != "" {
		wp.Kind = patch.Kind
	}
	if patch.Notes != "" {
		wp.Notes = patch.Notes
	}
	if patch.Lat != 0 {
		wp.Lat = patch.Lat
	}
	if patch.Lng != 0 {
		wp.Lng = patch.Lng
	}
	if patch.ElevationM != 0 {
		wp.ElevationM = patch.ElevationM
	}

	_, err = s.db.Exec(ctx, `
		UPDATE waypoints
		SET name=$2, kind=$3, notes=$4,
		    location=ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography,
		    elevation_m=$7
		WHERE id=$1
	`, wp.ID, wp.Name, wp.Kind, wp.Notes, wp.Lng, wp.Lat, wp.ElevationM)
	if err != nil {
		return Waypoint{}, err
	}
	return wp, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	var owner string
	err := s.db.QueryRow(ctx, `SELECT owner_id FROM waypoints WHERE id=$1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return ErrNotOwner
	}

	_, err = s.db.Exec(ctx, `DELETE FROM waypoints WHERE id=$1`, id)
	return err
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, kind, notes, ST_Y(location::geometry), ST_X(location::geometry),
		       elevation_m, created_at
		FROM waypoints WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Nearby returns the owner's waypoints within radiusKm of a coordinate,
// nearest first.
func (s *Service) Nearby(ctx context.Context, ownerID string, lat, lng, radiusKm float64) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, kind, notes, ST_Y(location::geometry), ST_X(location::geometry),
		       elevation_m, created_at
		FROM waypoints
		WHERE owner_id=$1
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4)
		ORDER BY location <-> ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography
	`, ownerID, lng, lat, radiusKm*1000)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Waypoint, error) {
	results := []Waypoint{}
	for rows.Next() {
		var wp Waypoint
		if err := rows.Scan(&wp.ID, &wp.OwnerID, &wp.Name, &wp.Kind, &wp.Notes, &wp.Lat, &wp.Lng, &wp.ElevationM, &wp.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, wp)
	}
	return results, rows.Err()
}
