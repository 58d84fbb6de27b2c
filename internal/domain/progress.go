package domain

// WatchProgress is one persisted record per target key.
// Timestamp is epoch milliseconds of the last write.
type WatchProgress struct {
	CurrentTime float64 `json:"current_time"`
	IsFinished  bool    `json:"is_finished"`
	Timestamp   int64   `json:"timestamp"`
}
