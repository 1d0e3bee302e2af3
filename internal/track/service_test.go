package track

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"backend-broadhead/internal/stream"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

var trackCols = []string{"id", "owner_id", "name", "description", "path", "distance_m", "duration_sec", "avg_speed_mps", "elevation_gain_m", "elevation_loss_m", "start_time_ms", "end_time_ms", "is_active", "created_at"}

func trackRow(owner, path string, distance float64, start, end int64, active bool) *pgxmock.Rows {
	return pgxmock.NewRows(trackCols).
		AddRow("track-1", owner, "Morning Hunt", "", []byte(path), distance, 0.0, 0.0, nil, nil, start, end, active, time.Now())
}

func mockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	return mock
}

func TestStartTrack(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	oldNow := nowMs
	nowMs = func() int64 { return 1000 }
	defer func() { nowMs = oldNow }()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO tracks`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Morning Hunt", "", int64(1000), int64(1000)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.Start(context.Background(), "user-1", "Morning Hunt", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tr.ID == "" || !tr.IsActive {
		t.Fatalf("expected active track with id, got %+v", tr)
	}
	if tr.DistanceM != 0 || len(tr.Path) != 0 {
		t.Fatalf("expected empty track, got %+v", tr)
	}
	if tr.StartTimeMs != 1000 || tr.EndTimeMs != 1000 {
		t.Fatalf("unexpected timestamps: %+v", tr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStartTrackActiveExists(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.Start(context.Background(), "user-1", "Morning Hunt", "")
	if !errors.Is(err, ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}
}

func TestStartTrackUniqueRace(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO tracks`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Morning Hunt", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.Start(context.Background(), "user-1", "Morning Hunt", "")
	if !errors.Is(err, ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}
}

func TestStartTrackBeginError(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errTrack)

	svc := NewService(mock, nil)
	_, err := svc.Start(context.Background(), "user-1", "Morning Hunt", "")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestAddPointFirst(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	oldNow := nowMs
	nowMs = func() int64 { return 61000 }
	defer func() { nowMs = oldNow }()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, true))
	mock.ExpectExec(`UPDATE tracks SET path=`).
		WithArgs("track-1", pgxmock.AnyArg(), 0.0, int64(61000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.95, Lng: -92.33})
	if err != nil {
		t.Fatalf("add point: %v", err)
	}
	if len(tr.Path) != 1 || tr.DistanceM != 0 {
		t.Fatalf("first point must contribute zero distance: %+v", tr)
	}
	if tr.Path[0].TimestampMs != 61000 || tr.EndTimeMs != 61000 {
		t.Fatalf("expected server-assigned timestamp: %+v", tr)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddPointAccumulatesDistance(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[{"lat":38.95,"lng":-92.33,"timestamp_ms":1000,"altitude_m":300}]`, 0, 1000, 1000, true))
	mock.ExpectExec(`UPDATE tracks SET path=`).
		WithArgs("track-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	alt := 305.0
	svc := NewService(mock, nil)
	tr, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.951, Lng: -92.331, AltitudeM: &alt})
	if err != nil {
		t.Fatalf("add point: %v", err)
	}
	// haversine of (38.950,-92.330)->(38.951,-92.331) with R=6371000
	if tr.DistanceM < 140 || tr.DistanceM > 142 {
		t.Fatalf("unexpected distance: %v", tr.DistanceM)
	}
	if len(tr.Path) != 2 {
		t.Fatalf("expected appended path, got %d points", len(tr.Path))
	}
}

func TestAddPointNotFound(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.AddPoint(context.Background(), "user-1", "missing", TrackPoint{Lat: 38.95, Lng: -92.33})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddPointStopped(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, false))
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.95, Lng: -92.33})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestAddPointWrongOwner(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("someone-else", `[]`, 0, 1000, 1000, true))
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.95, Lng: -92.33})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestAddPointUpdateError(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, true))
	mock.ExpectExec(`UPDATE tracks SET path=`).
		WithArgs("track-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errTrack)
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.95, Lng: -92.33})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestStopScenario(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	path := `[{"lat":38.95,"lng":-92.33,"timestamp_ms":1000,"altitude_m":300},{"lat":38.951,"lng":-92.331,"timestamp_ms":61000,"altitude_m":305}]`

	gain := 5.0
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", path, 140.86, 1000, 61000, true))
	mock.ExpectExec(`SET duration_sec=`).
		WithArgs("track-1", 60.0, pgxmock.AnyArg(), &gain, (*float64)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.Stop(context.Background(), "user-1", "track-1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.IsActive {
		t.Fatalf("expected inactive track")
	}
	if tr.DurationSec != 60 {
		t.Fatalf("unexpected duration: %v", tr.DurationSec)
	}
	if math.Abs(tr.AvgSpeedMps-140.86/60) > 1e-9 {
		t.Fatalf("unexpected average speed: %v", tr.AvgSpeedMps)
	}
	if tr.ElevationGainM == nil || *tr.ElevationGainM != 5 {
		t.Fatalf("expected elevation gain 5, got %+v", tr.ElevationGainM)
	}
	if tr.ElevationLossM != nil {
		t.Fatalf("expected elevation loss unset, got %v", *tr.ElevationLossM)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStopZeroDuration(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, true))
	mock.ExpectExec(`SET duration_sec=`).
		WithArgs("track-1", 0.0, 0.0, (*float64)(nil), (*float64)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.Stop(context.Background(), "user-1", "track-1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.DurationSec != 0 || tr.AvgSpeedMps != 0 {
		t.Fatalf("expected zero duration and speed, got %+v", tr)
	}
}

func TestStopAltitudeGaps(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	// only the 305->290 pair carries altitude on both ends
	path := `[{"lat":38.95,"lng":-92.33,"timestamp_ms":1000,"altitude_m":300},{"lat":38.951,"lng":-92.331,"timestamp_ms":2000},{"lat":38.952,"lng":-92.332,"timestamp_ms":3000,"altitude_m":305},{"lat":38.953,"lng":-92.333,"timestamp_ms":4000,"altitude_m":290}]`

	loss := 15.0
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", path, 420.0, 1000, 4000, true))
	mock.ExpectExec(`SET duration_sec=`).
		WithArgs("track-1", 3.0, pgxmock.AnyArg(), (*float64)(nil), &loss).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.Stop(context.Background(), "user-1", "track-1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.ElevationGainM != nil {
		t.Fatalf("pairs missing an altitude must be skipped, got gain %v", *tr.ElevationGainM)
	}
	if tr.ElevationLossM == nil || *tr.ElevationLossM != 15 {
		t.Fatalf("expected elevation loss 15, got %+v", tr.ElevationLossM)
	}
}

func TestStopIdempotent(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 61000, false))
	mock.ExpectExec(`SET duration_sec=`).
		WithArgs("track-1", 60.0, 0.0, (*float64)(nil), (*float64)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	tr, err := svc.Stop(context.Background(), "user-1", "track-1")
	if err != nil {
		t.Fatalf("stop on stopped track must recompute: %v", err)
	}
	if tr.IsActive || tr.DurationSec != 60 {
		t.Fatalf("unexpected track: %+v", tr)
	}
}

func TestStopWrongOwner(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("someone-else", `[]`, 0, 1000, 1000, true))
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	_, err := svc.Stop(context.Background(), "user-1", "track-1")
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestDeleteTrack(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner_id FROM tracks`).
		WithArgs("track-1").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM tracks`).
		WithArgs("track-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, nil)
	if err := svc.Delete(context.Background(), "user-1", "track-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner_id FROM tracks`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	err := svc.Delete(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteWrongOwner(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner_id FROM tracks`).
		WithArgs("track-1").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow("someone-else"))
	mock.ExpectRollback()

	svc := NewService(mock, nil)
	err := svc.Delete(context.Background(), "user-1", "track-1")
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	rows := pgxmock.NewRows(trackCols).
		AddRow("track-2", "user-1", "Evening Scout", "", []byte(`[]`), 0.0, 0.0, 0.0, nil, nil, int64(5000), int64(5000), true, time.Now()).
		AddRow("track-1", "user-1", "Morning Hunt", "ridge loop", []byte(`[{"lat":38.95,"lng":-92.33,"timestamp_ms":1000}]`), 140.86, 60.0, 2.35, nil, nil, int64(1000), int64(61000), false, time.Now())
	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(rows)

	svc := NewService(mock, nil)
	tracks, err := svc.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].ID != "track-2" || tracks[1].ID != "track-1" {
		t.Fatalf("unexpected order: %s, %s", tracks[0].ID, tracks[1].ID)
	}
	if len(tracks[1].Path) != 1 || tracks[1].Description != "ridge loop" {
		t.Fatalf("unexpected track fields: %+v", tracks[1])
	}
}

func TestListByOwnerEmpty(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(trackCols))

	svc := NewService(mock, nil)
	tracks, err := svc.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tracks == nil || len(tracks) != 0 {
		t.Fatalf("expected empty slice, got %v", tracks)
	}
}

func TestListByOwnerQueryError(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnError(errTrack)

	svc := NewService(mock, nil)
	_, err := svc.ListByOwner(context.Background(), "user-1")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestActiveNone(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectQuery(`LIMIT 1`).
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock, nil)
	tr, err := svc.Active(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if tr != nil {
		t.Fatalf("expected nil track, got %+v", tr)
	}
}

func TestActiveFound(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectQuery(`LIMIT 1`).
		WithArgs("user-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, true))

	svc := NewService(mock, nil)
	tr, err := svc.Active(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if tr == nil || tr.ID != "track-1" || !tr.IsActive {
		t.Fatalf("unexpected track: %+v", tr)
	}
}

func TestAddPointBroadcasts(t *testing.T) {
	mock := mockPool(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM tracks WHERE id=`).
		WithArgs("track-1").
		WillReturnRows(trackRow("user-1", `[]`, 0, 1000, 1000, true))
	mock.ExpectExec(`UPDATE tracks SET path=`).
		WithArgs("track-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	hub := stream.NewHub(nil)
	viewer := hub.Register("track-1")
	defer hub.Unregister(viewer)

	svc := NewService(mock, hub)
	if _, err := svc.AddPoint(context.Background(), "user-1", "track-1", TrackPoint{Lat: 38.95, Lng: -92.33}); err != nil {
		t.Fatalf("add point: %v", err)
	}

	select {
	case msg := <-viewer.Send:
		var point TrackPoint
		if err := json.Unmarshal(msg, &point); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if point.Lat != 38.95 || point.Lng != -92.33 {
			t.Fatalf("unexpected broadcast point: %+v", point)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}
}

var errTrack = errors.New("track error")
