package agentgraph

// RunConfig identifies a run for checkpointing and storage.
type RunConfig struct {
	// ThreadID groups checkpoints. Runs on the same thread continue from
	// the thread's latest checkpoint.
	ThreadID string `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`

	// CheckpointID selects a specific checkpoint to start from (time travel).
	CheckpointID string `json:"checkpoint_id,omitempty" yaml:"checkpoint_id,omitempty"`

	// Namespace separates checkpoints of nested runs within one thread.
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// UserID scopes key-value store namespaces returned by Context.Namespace.
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}
