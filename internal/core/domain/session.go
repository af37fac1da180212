package domain

import "time"

type SessionID string

type SessionKind string

const (
	SessionAudio SessionKind = "audio"
	SessionMusic SessionKind = "music"
)

// Participant is one user's state inside a communication session.
type Participant struct {
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	Active   bool       `json:"active"`
	Muted    bool       `json:"muted"`
}

// MediaInfo describes the shared source of a music session.
type MediaInfo struct {
	Source   string  `json:"source,omitempty"`
	TrackID  string  `json:"track_id,omitempty"`
	Position float64 `json:"position,omitempty"`
}

// CommunicationSession is the durable record of an audio or music activity
// for a group. At most one active session exists per (group, kind) pair.
type CommunicationSession struct {
	ID           SessionID              `json:"id"`
	GroupID      GroupID                `json:"group_id"`
	Kind         SessionKind            `json:"kind"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      *time.Time             `json:"ended_at,omitempty"`
	Active       bool                   `json:"active"`
	Participants map[UserID]Participant `json:"participants"`
	MediaInfo    *MediaInfo             `json:"media_info,omitempty"`
}

// UpsertParticipant adds or resets the participant entry for userID. A
// re-joining user starts over: joined-at is refreshed and muted is cleared.
func (s *CommunicationSession) UpsertParticipant(userID UserID, at time.Time) {
	if s.Participants == nil {
		s.Participants = make(map[UserID]Participant)
	}
	s.Participants[userID] = Participant{
		JoinedAt: at,
		Active:   true,
		Muted:    false,
	}
}

// MarkLeft flags the participant inactive with the given leave time. It
// reports whether the session still has any active participant afterwards.
func (s *CommunicationSession) MarkLeft(userID UserID, at time.Time) bool {
	if p, ok := s.Participants[userID]; ok {
		p.Active = false
		left := at
		p.LeftAt = &left
		s.Participants[userID] = p
	}
	for _, p := range s.Participants {
		if p.Active {
			return true
		}
	}
	return false
}

// SetMuted updates the participant's muted flag if the entry exists.
func (s *CommunicationSession) SetMuted(userID UserID, muted bool) {
	if p, ok := s.Participants[userID]; ok {
		p.Muted = muted
		s.Participants[userID] = p
	}
}

// End deactivates the session and stamps its end time.
func (s *CommunicationSession) End(at time.Time) {
	s.Active = false
	ended := at
	s.EndedAt = &ended
}
