package config

const (
	// TopicSyncProgress is the NSQ topic carrying per-cycle sync progress
	// events (records synced, new watermark).
	TopicSyncProgress = "sync.progress"
)
