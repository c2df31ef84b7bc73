package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestPrintFields(t *testing.T) {
	out := captureOutput(t)

	printFields(
		field{"Persona", "Ada"},
		field{"Status", "completed (4 steps)"},
		field{"Error", ""},
	)
	assert.Equal(t, "Persona: Ada\nStatus:  completed (4 steps)\n", out.String())
}

func TestPrintTable(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{
			name: "aligned columns",
			rows: [][]string{{"1", "click"}, {"12", "type"}},
			want: "STEP  ACTION\n1     click\n12    type\n",
		},
		{
			name: "no rows",
			want: "(none)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t)
			printTable([]string{"STEP", "ACTION"}, tt.rows)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestPrintJSON(t *testing.T) {
	out := captureOutput(t)
	printJSON(map[string]int{"total_steps": 3})
	assert.Equal(t, "{\n  \"total_steps\": 3\n}\n", out.String())
}
