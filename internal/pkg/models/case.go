package models

// Case is a single reported incident shared by one volunteer and visible to
// volunteers nearby. The server is the sole source of truth; the agent only
// holds a read-through cache of the most recent batch.
type Case struct {
	SharedID       string  `json:"sharedId"`
	SharedUsername string  `json:"sharedUsername"`
	SharedLat      float64 `json:"sharedLat"`
	SharedLong     float64 `json:"sharedLong"`
	// LocationStartTime is the server-assigned report time in Unix
	// milliseconds. It doubles as the freshness marker for deduplication.
	LocationStartTime int64 `json:"locationStartTime"`
	IsActive          bool  `json:"isActive"`
}

// InboxState is the deduplication state owned by the case inbox. It is
// mutated only after a batch has been fully processed.
type InboxState struct {
	// LastSeenTimestamp is the LocationStartTime of the newest case already
	// surfaced as a notification. Zero means nothing has been surfaced yet.
	LastSeenTimestamp int64
	// KnownCaseIDs holds the ids of every case that has appeared in a
	// processed batch.
	KnownCaseIDs map[string]struct{}
}

// NewInboxState returns an empty dedup state.
func NewInboxState() InboxState {
	return InboxState{KnownCaseIDs: make(map[string]struct{})}
}

// Clone returns a deep copy so Decide can stay a pure function.
func (s InboxState) Clone() InboxState {
	ids := make(map[string]struct{}, len(s.KnownCaseIDs))
	for id := range s.KnownCaseIDs {
		ids[id] = struct{}{}
	}
	return InboxState{LastSeenTimestamp: s.LastSeenTimestamp, KnownCaseIDs: ids}
}

// CaseQuery requests the current case list for a volunteer. RequestID carries
// the requester's user id; the server echoes it back so concurrently open
// channels can tell replies apart on the shared topic.
type CaseQuery struct {
	RequestID     string `json:"requestID"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// CaseBatch is the reply delivered on the getLocation topic: the full ordered
// case list for the echoed requester.
type CaseBatch struct {
	RequestID     string `json:"requestID,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Cases         []Case `json:"cases"`
}

// FalseReportRequest deactivates a case via the moderation endpoint.
type FalseReportRequest struct {
	SharedID string `json:"sharedId"`
	IsActive bool   `json:"isActive"`
}

// Notification is the content handed to the local notification sink.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
