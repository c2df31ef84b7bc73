package recorder

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/broadcast"
)

// LiveSnapshot is the last known state of one logical session.
type LiveSnapshot struct {
	SessionID      string    `json:"session_id"`
	StudyID        string    `json:"study_id"`
	PersonaName    string    `json:"persona_name"`
	Step           int       `json:"step"`
	Narration      string    `json:"narration"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	LiveViewURL    string    `json:"live_view_url,omitempty"`
	Progress       int       `json:"progress"`
	EmotionalState string    `json:"emotional_state"`
	Active         bool      `json:"active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LiveState holds snapshots for every logical session the process has seen. Recorders
// write it; the observer transport reads it.
type LiveState struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*LiveSnapshot
}

// NewLiveState creates an empty live state.
func NewLiveState() *LiveState {
	return &LiveState{sessions: make(map[uuid.UUID]*LiveSnapshot)}
}

func (l *LiveState) update(id uuid.UUID, fn func(*LiveSnapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.sessions[id]
	if !ok {
		snap = &LiveSnapshot{SessionID: id.String()}
		l.sessions[id] = snap
	}
	fn(snap)
	snap.UpdatedAt = time.Now()
}

// Get returns a copy of the snapshot for session id.
func (l *LiveState) Get(id uuid.UUID) (LiveSnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap, ok := l.sessions[id]
	if !ok {
		return LiveSnapshot{}, false
	}
	return *snap, true
}

// Study returns copies of the snapshots belonging to studyID, ordered by persona name.
func (l *LiveState) Study(studyID uuid.UUID) []LiveSnapshot {
	want := studyID.String()
	l.mu.RLock()
	out := make([]LiveSnapshot, 0)
	for _, snap := range l.sessions {
		if snap.StudyID == want {
			out = append(out, *snap)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PersonaName != out[j].PersonaName {
			return out[i].PersonaName < out[j].PersonaName
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// SnapshotMessage builds the snapshot event for studyID ready to publish.
func (l *LiveState) SnapshotMessage(studyID uuid.UUID) (broadcast.Message, error) {
	data, err := json.Marshal(SnapshotEvent{
		Type:     EventSnapshot,
		StudyID:  studyID.String(),
		Sessions: l.Study(studyID),
	})
	if err != nil {
		return broadcast.Message{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return broadcast.Message{Channel: broadcast.StudyChannel(studyID.String()), Data: data}, nil
}

// Prune drops inactive snapshots not updated within maxAge and returns how many were removed.
func (l *LiveState) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, snap := range l.sessions {
		if !snap.Active && snap.UpdatedAt.Before(cutoff) {
			delete(l.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (l *LiveState) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}
