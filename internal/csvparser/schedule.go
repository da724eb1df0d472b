package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ScheduleRow is one submission to (re)schedule for a follow-up email.
type ScheduleRow struct {
	SubmissionID int64
	ScheduledAt  time.Time
}

// ParseScheduleRows parses a CSV from an io.Reader. The header must contain a
// "submission_id" column (case-insensitive) and may contain "scheduled_at"
// (RFC3339). Rows without a scheduled_at value get defaultAt.
//
// maxRows limits how many data rows are parsed (excluding header).
func ParseScheduleRows(r io.Reader, maxRows int, defaultAt time.Time) ([]ScheduleRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, err
	}

	idIdx, atIdx := -1, -1
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "submission_id":
			idIdx = i
		case "scheduled_at":
			atIdx = i
		}
	}
	if idIdx == -1 {
		return nil, errors.New("csv must contain a submission_id column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	rows := make([]ScheduleRow, 0)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if len(record) != len(headers) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(headers), len(record))
		}

		raw := strings.TrimSpace(record[idIdx])
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: invalid submission_id %q", line, raw)
		}

		at := defaultAt
		if atIdx != -1 {
			if v := strings.TrimSpace(record[atIdx]); v != "" {
				at, err = time.Parse(time.RFC3339, v)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid scheduled_at %q", line, v)
				}
			}
		}

		if len(rows) == maxRows {
			return nil, fmt.Errorf("csv exceeds %d rows", maxRows)
		}
		rows = append(rows, ScheduleRow{SubmissionID: id, ScheduledAt: at})
	}

	if len(rows) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return rows, nil
}
