package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded persona sessions",
	}

	cmd.AddCommand(newSessionsGetCmd())
	return cmd
}

func newSessionsGetCmd() *cobra.Command {
	var showIssues bool

	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Get(fmt.Sprintf("/api/v1/sessions/%s", args[0]), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				var raw json.RawMessage
				json.Unmarshal(body, &raw)
				printJSON(raw)
				return nil
			}

			var detail SessionDetail
			if err := json.Unmarshal(body, &detail); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if detail.Session == nil {
				return fmt.Errorf("session %s not found", args[0])
			}

			s := detail.Session
			printFields(
				field{"Persona", s.PersonaName},
				field{"Task", s.TaskGoal},
				field{"Status", fmt.Sprintf("%s (%d steps)", s.Status, s.TotalSteps)},
				field{"Error", s.Error},
			)
			printMessage("")

			headers := []string{"STEP", "ACTION", "OK", "PROGRESS", "EMOTION", "NARRATION"}
			var rows [][]string
			for _, st := range detail.Steps {
				rows = append(rows, []string{
					strconv.Itoa(st.StepNumber),
					st.ActionKind,
					strconv.FormatBool(st.ActionSuccess),
					fmt.Sprintf("%d%%", st.TaskProgress),
					st.EmotionalState,
					truncate(st.Narration, 80),
				})
			}
			printTable(headers, rows)

			if showIssues && len(detail.Issues) > 0 {
				printMessage("")
				var issueRows [][]string
				for _, is := range detail.Issues {
					issueRows = append(issueRows, []string{is.Severity, is.Description})
				}
				printTable([]string{"SEVERITY", "ISSUE"}, issueRows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showIssues, "issues", true, "Also list reported issues")
	return cmd
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
