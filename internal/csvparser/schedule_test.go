package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultAt = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func TestParseScheduleRows(t *testing.T) {
	input := "Submission_ID,scheduled_at\n" +
		"17,2026-02-11T09:30:00Z\n" +
		"18,\n" +
		" 19 , 2026-02-12T10:00:00+01:00\n"

	rows, err := ParseScheduleRows(strings.NewReader(input), 0, defaultAt)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(17), rows[0].SubmissionID)
	assert.True(t, rows[0].ScheduledAt.Equal(time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)))

	assert.Equal(t, int64(18), rows[1].SubmissionID)
	assert.True(t, rows[1].ScheduledAt.Equal(defaultAt))

	assert.Equal(t, int64(19), rows[2].SubmissionID)
	assert.True(t, rows[2].ScheduledAt.Equal(time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)))
}

func TestParseScheduleRows_IDOnly(t *testing.T) {
	rows, err := ParseScheduleRows(strings.NewReader("submission_id\n1\n\n2\n"), 0, defaultAt)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].ScheduledAt.Equal(defaultAt))
}

func TestParseScheduleRows_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxRows int
		errMsg  string
	}{
		{name: "empty", input: "", errMsg: "csv is empty"},
		{name: "missing id column", input: "email\nada@example.com\n", errMsg: "submission_id column"},
		{name: "header only", input: "submission_id\n", errMsg: "at least one data row"},
		{name: "bad id", input: "submission_id\nabc\n", errMsg: `line 2: invalid submission_id "abc"`},
		{name: "negative id", input: "submission_id\n-4\n", errMsg: "invalid submission_id"},
		{name: "bad time", input: "submission_id,scheduled_at\n1,tomorrow\n", errMsg: `line 2: invalid scheduled_at "tomorrow"`},
		{name: "field count", input: "submission_id,scheduled_at\n1\n", errMsg: "line 2: expected 2 fields, got 1"},
		{name: "too many rows", input: "submission_id\n1\n2\n3\n", maxRows: 2, errMsg: "exceeds 2 rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScheduleRows(strings.NewReader(tt.input), tt.maxRows, defaultAt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	require.NoError(t, os.WriteFile(path, []byte("submission_id\n42\n"), 0o600))

	rows, err := ParseFile(path, 10, defaultAt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0].SubmissionID)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csv"), 10, defaultAt)
	assert.Error(t, err)
}
