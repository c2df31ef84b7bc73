package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hairizuanbinnoorazman/persona-navigator/screencast"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var framesDir string

	cmd := &cobra.Command{
		Use:   "watch <study-id>",
		Short: "Follow a study's live events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			wsURL, err := client.WebsocketURL("/ws/live")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
			}()

			if err := conn.WriteJSON(map[string]string{"type": "subscribe", "study_id": args[0]}); err != nil {
				return fmt.Errorf("failed to subscribe: %w", err)
			}

			if framesDir != "" {
				if err := os.MkdirAll(framesDir, 0o755); err != nil {
					return fmt.Errorf("failed to create frames directory: %w", err)
				}
			}

			frames := map[string]int{}
			for {
				kind, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("connection closed: %w", err)
				}

				if kind == websocket.BinaryMessage {
					sessionID, image, err := screencast.DecodeFrame(data)
					if err != nil {
						continue
					}
					frames[sessionID]++
					if framesDir != "" {
						os.WriteFile(filepath.Join(framesDir, sessionID+".jpg"), image, 0o644)
					}
					continue
				}

				if flagJSON {
					fmt.Println(string(data))
					continue
				}
				printMessage(describeEvent(data))
			}
		},
	}

	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "Write each session's latest frame here")
	return cmd
}

// describeEvent renders a study event as one line.
func describeEvent(data []byte) string {
	var ev struct {
		Type           string `json:"type"`
		PersonaName    string `json:"persona_name"`
		Step           int    `json:"step"`
		Narration      string `json:"narration"`
		Progress       int    `json:"progress"`
		EmotionalState string `json:"emotional_state"`
		Message        string `json:"message"`
		Error          string `json:"error"`
		Status         string `json:"status"`
		From           string `json:"from"`
		To             string `json:"to"`
		Sessions       []struct {
			PersonaName string `json:"persona_name"`
			Step        int    `json:"step"`
			Active      bool   `json:"active"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return string(data)
	}

	switch ev.Type {
	case "snapshot":
		active := 0
		for _, s := range ev.Sessions {
			if s.Active {
				active++
			}
		}
		return fmt.Sprintf("snapshot: %d sessions, %d active", len(ev.Sessions), active)
	case "step":
		return fmt.Sprintf("[%s] step %d (%d%%, %s): %s", ev.PersonaName, ev.Step, ev.Progress, ev.EmotionalState, truncate(ev.Narration, 120))
	case "emotional_shift":
		return fmt.Sprintf("[%s] step %d: %s -> %s", ev.PersonaName, ev.Step, ev.From, ev.To)
	case "progress":
		return fmt.Sprintf("[%s] %s", ev.PersonaName, ev.Message)
	case "error":
		return fmt.Sprintf("[%s] error: %s", ev.PersonaName, ev.Error)
	case "session_started", "session_completed":
		return fmt.Sprintf("[%s] %s %s", ev.PersonaName, ev.Type, ev.Status)
	default:
		return string(data)
	}
}
