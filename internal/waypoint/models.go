package waypoint

import "time"

// Waypoint kinds a hunter can mark.
const (
	KindStand  = "stand"
	KindBlind  = "blind"
	KindCamera = "camera"
	KindFeeder = "feeder"
	KindSign   = "sign"
	KindAccess = "access"
)

var validKinds = map[string]struct{}{
	KindStand:  {},
	KindBlind:  {},
	KindCamera: {},
	KindFeeder: {},
	KindSign:   {},
	KindAccess: {},
}

func ValidKind(kind string) bool {
	_, ok := validKinds[kind]
	return ok
}

type Waypoint struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Notes      string    `json:"notes,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ElevationM float64   `json:"elevation_m"`
	CreatedAt  time.Time `json:"created_at"`
}
