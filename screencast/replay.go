package screencast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// ReplayManifest indexes the frames written for one session.
type ReplayManifest struct {
	SessionID  string              `json:"session_id"`
	FrameCount int                 `json:"frame_count"`
	Frames     []ReplayManifestRef `json:"frames"`
}

// ReplayManifestRef points at one stored frame.
type ReplayManifestRef struct {
	Path       string    `json:"path"`
	CapturedAt time.Time `json:"captured_at"`
}

// ReplayDir is the storage directory holding a session's replay frames.
func ReplayDir(sessionID string) string {
	return path.Join("replays", sessionID)
}

func (s *Streamer) flushReplay(ctx context.Context, frames []replayFrame) error {
	dir := ReplayDir(s.sessionID)
	manifest := ReplayManifest{SessionID: s.sessionID}

	for i, f := range frames {
		p := path.Join(dir, fmt.Sprintf("frame-%05d.jpg", i))
		if err := s.blobs.Upload(ctx, p, bytes.NewReader(f.data)); err != nil {
			return fmt.Errorf("upload %s: %w", p, err)
		}
		manifest.Frames = append(manifest.Frames, ReplayManifestRef{Path: p, CapturedAt: f.capturedAt})
	}
	manifest.FrameCount = len(manifest.Frames)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal replay manifest: %w", err)
	}
	if err := s.blobs.Upload(ctx, path.Join(dir, "manifest.json"), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}

	s.logger.Info(ctx, "replay frames written", map[string]interface{}{
		"frames": manifest.FrameCount,
		"dir":    dir,
	})
	return nil
}
