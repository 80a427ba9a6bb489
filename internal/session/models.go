package session

import (
	"time"
)

// Session is one collaborative listening session. Participants, the queue
// and the current track live inside the session document; the queue is an
// ordered array whose index is the authoritative ordering signal.
type Session struct {
	SessionID    string        `json:"sessionId"`
	HostID       string        `json:"hostId"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	Participants []Participant `json:"participants"`
	Queue        []QueueItem   `json:"queue"`
	CurrentTrack *CurrentTrack `json:"currentTrack,omitempty"`
	IsActive     bool          `json:"isActive"`
}

// Participant is one member of a session. The host is seeded as the first
// participant when the session is created.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"` // "host" | "member"
	JoinedAt time.Time `json:"joinedAt"`
}

// QueueItem is one track awaiting playback. TrackID is the Spotify track
// identifier and is not unique within a queue; lookups by trackId affect the
// first match only. Position is the insertion index at append time and is
// not renumbered by later reorders.
type QueueItem struct {
	TrackID    string    `json:"trackId"`
	TrackName  string    `json:"trackName"`
	ArtistName string    `json:"artistName"`
	AlbumName  string    `json:"albumName"`
	AlbumArt   string    `json:"albumArt,omitempty"`
	URI        string    `json:"uri"`
	AddedBy    string    `json:"addedBy"`
	AddedAt    time.Time `json:"addedAt"`
	Position   int       `json:"position"`
}

// CurrentTrack mirrors the external player state as last reported by a
// client; it is a hint, not authoritative.
type CurrentTrack struct {
	TrackID    string    `json:"trackId"`
	StartedAt  time.Time `json:"startedAt"`
	ProgressMs int       `json:"progressMs"`
}

const (
	roleHost   = "host"
	roleMember = "member"
)

// SessionTTL is how long a session stays reachable after creation.
const SessionTTL = 24 * time.Hour
