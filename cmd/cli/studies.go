package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/agent"
	"github.com/hairizuanbinnoorazman/persona-navigator/recorder"
	"github.com/hairizuanbinnoorazman/persona-navigator/studyrun"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStudiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studies",
		Short: "Submit and inspect persona studies",
	}

	cmd.AddCommand(newStudiesSubmitCmd())
	cmd.AddCommand(newStudiesListCmd())
	cmd.AddCommand(newStudiesGetCmd())
	cmd.AddCommand(newStudiesSnapshotCmd())
	cmd.AddCommand(newStudiesSessionsCmd())
	return cmd
}

// readStudyFile parses a YAML study definition into a submission request.
func readStudyFile(path string) (CreateStudyRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CreateStudyRequest{}, fmt.Errorf("failed to read study file: %w", err)
	}
	var study agent.Study
	if err := yaml.Unmarshal(data, &study); err != nil {
		return CreateStudyRequest{}, fmt.Errorf("failed to parse study file: %w", err)
	}
	if err := study.Validate(); err != nil {
		return CreateStudyRequest{}, err
	}
	return CreateStudyRequest{Name: study.Name, Task: study.Task, Personas: study.Personas}, nil
}

func newStudiesSubmitCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a study run from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readStudyFile(file)
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Post("/api/v1/studies", req)
			if err != nil {
				return err
			}

			if flagJSON {
				var raw json.RawMessage
				json.Unmarshal(body, &raw)
				printJSON(raw)
				return nil
			}

			var resp CreateStudyResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(fmt.Sprintf("Study %s %s with %d personas", resp.StudyID, resp.Status, resp.Personas))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Study definition (YAML, required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func newStudiesListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted studies",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			params := url.Values{}
			params.Set("limit", strconv.Itoa(limit))
			params.Set("offset", strconv.Itoa(offset))
			if status != "" {
				params.Set("status", status)
			}

			body, err := client.Get("/api/v1/studies", params)
			if err != nil {
				return err
			}

			if flagJSON {
				var raw json.RawMessage
				json.Unmarshal(body, &raw)
				printJSON(raw)
				return nil
			}

			var resp PaginatedResponse[studyrun.Run]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "NAME", "STATUS", "PERSONAS", "CREATED AT", "ENDED AT"}
			var rows [][]string
			for _, r := range resp.Items {
				rows = append(rows, []string{
					r.ID.String(),
					r.Name,
					string(r.Status),
					strconv.Itoa(r.Personas),
					r.CreatedAt.Format("2006-01-02 15:04:05"),
					formatTime(r.EndTime),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d of %d studies", len(resp.Items), resp.Total))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, running, completed, failed, cancelled, rejected)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")
	return cmd
}

func newStudiesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <study-id>",
		Short: "Show a study's status and outcome summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Get(fmt.Sprintf("/api/v1/studies/%s", args[0]), nil)
			if err != nil {
				return err
			}

			var run studyrun.Run
			if err := json.Unmarshal(body, &run); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if flagJSON {
				printJSON(run)
				return nil
			}

			fields := []field{
				{"ID", run.ID.String()},
				{"Name", run.Name},
				{"Status", string(run.Status)},
				{"Personas", strconv.Itoa(run.Personas)},
				{"Started", formatTime(run.StartTime)},
				{"Ended", formatTime(run.EndTime)},
			}
			for _, key := range []string{"completed", "gave_up", "errored", "total_steps"} {
				if v, ok := run.Summary[key]; ok {
					fields = append(fields, field{key, fmt.Sprint(v)})
				}
			}
			fields = append(fields, field{"Error", run.Error})
			printFields(fields...)
			return nil
		},
	}
}

func newStudiesSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <study-id>",
		Short: "Show the live state of a study's sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Get(fmt.Sprintf("/api/v1/studies/%s/snapshot", args[0]), nil)
			if err != nil {
				return err
			}

			var snap recorder.SnapshotEvent
			if err := json.Unmarshal(body, &snap); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if flagJSON {
				printJSON(snap)
				return nil
			}

			headers := []string{"SESSION", "PERSONA", "STEP", "PROGRESS", "EMOTION", "ACTIVE"}
			var rows [][]string
			for _, s := range snap.Sessions {
				rows = append(rows, []string{
					s.SessionID,
					s.PersonaName,
					strconv.Itoa(s.Step),
					fmt.Sprintf("%d%%", s.Progress),
					s.EmotionalState,
					strconv.FormatBool(s.Active),
				})
			}
			printTable(headers, rows)
			return nil
		},
	}
}

func newStudiesSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <study-id>",
		Short: "List the recorded sessions of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Get(fmt.Sprintf("/api/v1/studies/%s/sessions", args[0]), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				var raw json.RawMessage
				json.Unmarshal(body, &raw)
				printJSON(raw)
				return nil
			}

			var resp ListResponse[recorder.PersonaSession]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "PERSONA", "STATUS", "STEPS", "CREATED AT", "COMPLETED AT"}
			var rows [][]string
			for _, s := range resp.Items {
				rows = append(rows, []string{
					s.ID.String(),
					s.PersonaName,
					string(s.Status),
					strconv.Itoa(s.TotalSteps),
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					formatTime(s.CompletedAt),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d sessions", resp.Total))
			return nil
		},
	}
}
