package constants

// Event channel topics. Both are fixed by the backend contract.
const (
	// TopicSendLocation publishes a volunteer's coordinate. Fire-and-forget.
	TopicSendLocation = "sendLocation"
	// TopicGetLocation is bidirectional: a query with a requester id goes
	// out, the full case list for that requester comes back on the same
	// topic.
	TopicGetLocation = "getLocation"
)

// DisplayWindow is the number of most recent cases the inbox retains and
// shows, matching the backend's expectation of at most nine visible entries.
const DisplayWindow = 9

// MaxReconnectAttempts bounds automatic event channel reconnection. Beyond
// this the agent stays offline until restarted.
const MaxReconnectAttempts = 5
