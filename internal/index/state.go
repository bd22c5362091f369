// Package index turns vault files into stored embeddings. The Orchestrator
// owns one run at a time: it determines which files changed, chunks them,
// embeds the chunks through the Pipeline and persists the results.
package index

import "sync/atomic"

// State is a phase of an indexing run.
type State int32

const (
	// StateIdle means no run is in progress.
	StateIdle State = iota
	// StateDeterminingFiles covers filtering, orphan cleanup and change detection.
	StateDeterminingFiles
	// StateChunking covers reading and splitting candidate files.
	StateChunking
	// StateEmbedding covers the embedding pipeline.
	StateEmbedding
	// StatePersisting covers the final save.
	StatePersisting
	// StateFailed means the last run ended with an error.
	StateFailed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDeterminingFiles:
		return "DeterminingFiles"
	case StateChunking:
		return "Chunking"
	case StateEmbedding:
		return "Embedding"
	case StatePersisting:
		return "Persisting"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// stateMachine records the current State. Reads are lock-free so status
// can be polled while a run is in progress.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) get() State {
	return State(m.v.Load())
}

func (m *stateMachine) set(s State) {
	m.v.Store(int32(s))
}
