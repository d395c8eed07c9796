// Package export renders the session person list as CSV for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/kozaktomas/face-counter/internal/tracking"
)

var header = []string{"ID", "Gender", "AgeGroup", "EstimatedAge", "FirstSeen", "Appearances"}

// WriteCSV writes one row per person, in the order the persons were first
// detected, after a single header row.
func WriteCSV(w io.Writer, persons []*tracking.Person) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, person := range persons {
		row := []string{
			person.ID,
			string(person.Gender),
			string(person.AgeGroup),
			fmt.Sprintf("%d", int(math.Round(person.EstimatedAge))),
			person.FirstSeen.UTC().Format(time.RFC3339),
			fmt.Sprintf("%d", person.Appearances),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", person.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Filename derives the download name from the session start date.
func Filename(sessionStart time.Time) string {
	return "attendance_" + sessionStart.UTC().Format("2006-01-02") + ".csv"
}
