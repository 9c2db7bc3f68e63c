// package formatter exports completion store data to various formats (CSV, JSON, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
)

// Formats accepted by the status command.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// ItemRecord is the exported shape of a [models.Item].
type ItemRecord struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Title        string    `json:"title,omitempty"`
	Segments     *int      `json:"segments,omitempty"`
	SegmentsDone int       `json:"segments_done"`
	Attempts     int       `json:"attempts"`
	Reason       string    `json:"reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SummaryRecord is the exported shape of a [models.Summary].
type SummaryRecord struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Fetched      int `json:"fetched"`
	Done         int `json:"done"`
	Failed       int `json:"failed"`
	Segments     int `json:"segments"`
	SegmentsDone int `json:"segments_done"`
}

// SegmentRecord is the exported shape of a [models.Segment]. Times are in seconds.
type SegmentRecord struct {
	ItemID     string   `json:"item_id,omitempty"`
	Ordinal    int      `json:"ordinal"`
	Title      string   `json:"title"`
	Start      float64  `json:"start"`
	End        *float64 `json:"end,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Done       bool     `json:"done"`
}

// StatusReport is the JSON document printed by the status command.
type StatusReport struct {
	Summary SummaryRecord `json:"summary"`
	Items   []ItemRecord  `json:"items,omitempty"`
}

func toItemRecord(item models.Item) ItemRecord {
	return ItemRecord{
		ID:           item.ID,
		State:        string(item.State),
		Title:        item.Title,
		Segments:     item.SegmentCount,
		SegmentsDone: item.SegmentsDone,
		Attempts:     item.Attempts,
		Reason:       item.Reason,
		UpdatedAt:    item.UpdatedAt,
	}
}

func toSummaryRecord(s models.Summary) SummaryRecord {
	return SummaryRecord{
		Total:        s.Total(),
		Pending:      s.Pending,
		Fetched:      s.Fetched,
		Done:         s.Done,
		Failed:       s.Failed,
		Segments:     s.Segments,
		SegmentsDone: s.SegmentsDone,
	}
}

// StatusToJSON renders the summary and items as indented JSON.
func StatusToJSON(summary models.Summary, items []models.Item) ([]byte, error) {
	report := StatusReport{Summary: toSummaryRecord(summary)}
	for _, item := range items {
		report.Items = append(report.Items, toItemRecord(item))
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// SegmentsToJSON renders segments as an indented JSON array.
func SegmentsToJSON(segs []models.Segment) ([]byte, error) {
	records := make([]SegmentRecord, 0, len(segs))
	for _, seg := range segs {
		rec := SegmentRecord{
			ItemID:     seg.ItemID,
			Ordinal:    seg.Ordinal,
			Title:      seg.Title,
			Start:      seg.Start.Seconds(),
			OutputPath: seg.OutputPath,
			Done:       seg.Done,
		}
		if seg.End != nil {
			end := seg.End.Seconds()
			rec.End = &end
		}
		records = append(records, rec)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// SegmentRows converts segments to table rows matching [SegmentHeaders].
func SegmentRows(segs []models.Segment) [][]string {
	rows := make([][]string, 0, len(segs))
	for _, seg := range segs {
		end := "end"
		if seg.End != nil {
			end = models.FormatTimestamp(*seg.End)
		}
		done := ""
		if seg.Done {
			done = "✓"
		}
		rows = append(rows, []string{
			strconv.Itoa(seg.Ordinal + 1),
			models.FormatTimestamp(seg.Start),
			end,
			seg.Title,
			seg.OutputPath,
			done,
		})
	}
	return rows
}

// SegmentHeaders are the column titles of [SegmentRows].
func SegmentHeaders() []string {
	return []string{"#", "Start", "End", "Title", "Output", "Done"}
}

// ItemsToCSV converts items to CSV with columns: ID, State, Title, Segments, Done, Attempts, Reason, Updated
func ItemsToCSV(items []models.Item) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "State", "Title", "Segments", "Done", "Attempts", "Reason", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		if err := writer.Write(itemRow(item, time.RFC3339)); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// SegmentsToCSV converts segments to CSV with columns: Item, Ordinal, Start, End, Title, Output, Done
func SegmentsToCSV(segs []models.Segment) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Item", "Ordinal", "Start", "End", "Title", "Output", "Done"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, seg := range segs {
		end := ""
		if seg.End != nil {
			end = models.FormatTimestamp(*seg.End)
		}
		record := []string{
			seg.ItemID,
			strconv.Itoa(seg.Ordinal),
			models.FormatTimestamp(seg.Start),
			end,
			seg.Title,
			seg.OutputPath,
			strconv.FormatBool(seg.Done),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// SegmentsToText lists segments one per line as "n. start-end title".
func SegmentsToText(segs []models.Segment) []byte {
	var buf bytes.Buffer
	if len(segs) == 0 {
		buf.WriteString("No segments detected\n")
		return buf.Bytes()
	}
	for _, seg := range segs {
		fmt.Fprintf(&buf, "%d. %s\n", seg.Ordinal+1, seg)
	}
	return buf.Bytes()
}

// ItemRows converts items to table rows matching [ItemHeaders].
func ItemRows(items []models.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, itemRow(item, time.DateTime))
	}
	return rows
}

// ItemHeaders are the column titles of [ItemRows].
func ItemHeaders() []string {
	return []string{"ID", "State", "Title", "Segments", "Done", "Attempts", "Reason", "Updated"}
}

// SummaryRows converts a summary into label/count rows.
func SummaryRows(s models.Summary) [][]string {
	return [][]string{
		{"Pending", strconv.Itoa(s.Pending)},
		{"Fetched", strconv.Itoa(s.Fetched)},
		{"Done", strconv.Itoa(s.Done)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Total", strconv.Itoa(s.Total())},
		{"Segments rendered", fmt.Sprintf("%d/%d", s.SegmentsDone, s.Segments)},
	}
}

func itemRow(item models.Item, layout string) []string {
	segments := ""
	if item.SegmentCount != nil {
		segments = strconv.Itoa(*item.SegmentCount)
	}
	updated := ""
	if !item.UpdatedAt.IsZero() {
		updated = item.UpdatedAt.Format(layout)
	}
	return []string{
		item.ID,
		string(item.State),
		item.Title,
		segments,
		strconv.Itoa(item.SegmentsDone),
		strconv.Itoa(item.Attempts),
		item.Reason,
		updated,
	}
}

// WriteExport writes data to path, creating parent directories.
func WriteExport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
