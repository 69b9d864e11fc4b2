package session

// Session is the server-side record of one authenticated admin session.
// Timestamps are unix seconds.
type Session struct {
	SchemaVersion uint8
	SessionID     string
	Email         string
	CreatedAt     int64
	ExpiresAt     int64
}
