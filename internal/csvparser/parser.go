package csvparser

import (
	"os"
	"time"
)

// ParseFile reads schedule rows from a CSV file on disk.
func ParseFile(path string, maxRows int, defaultAt time.Time) ([]ScheduleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseScheduleRows(f, maxRows, defaultAt)
}
