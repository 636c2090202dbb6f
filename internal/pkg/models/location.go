package models

import "strconv"

// Coordinate is an immutable position snapshot produced by a location provider.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationReport is the payload sent to the radius-query backend. The backend
// expects latitude and longitude as decimal strings, built fresh per report.
type LocationReport struct {
	UserID   string `json:"userId"`
	Username string `json:"userUsername"`
	Lat      string `json:"userLat"`
	Long     string `json:"userLong"`
}

// NewLocationReport builds a report for the given session and coordinate.
func NewLocationReport(session Session, coord Coordinate) LocationReport {
	return LocationReport{
		UserID:   session.UserID,
		Username: session.Username,
		Lat:      strconv.FormatFloat(coord.Latitude, 'f', -1, 64),
		Long:     strconv.FormatFloat(coord.Longitude, 'f', -1, 64),
	}
}

// NearbyUser is one entry of a server-computed radius query result.
type NearbyUser struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Distance float64 `json:"distance"`
}

// ProximityResult is the radius query response. Distances are computed
// server-side; the client never derives them from raw coordinates.
type ProximityResult struct {
	UsersWithinRadius []NearbyUser `json:"usersWithinRadius"`
}

// ExcludeUser returns a copy of the result with the given user removed.
// The backend may include the querying user in its own radius.
func (r *ProximityResult) ExcludeUser(userID string) *ProximityResult {
	filtered := make([]NearbyUser, 0, len(r.UsersWithinRadius))
	for _, u := range r.UsersWithinRadius {
		if u.UserID == userID {
			continue
		}
		filtered = append(filtered, u)
	}
	return &ProximityResult{UsersWithinRadius: filtered}
}

// LocationEvent is published over the event channel while continuous
// tracking is active. Fire-and-forget, no reply expected.
type LocationEvent struct {
	UserID    string  `json:"userId"`
	Username  string  `json:"userUsername"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Geohash   string  `json:"geohash,omitempty"`
	Timestamp int64   `json:"timestamp"`
}
