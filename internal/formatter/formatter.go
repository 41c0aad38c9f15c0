// package formatter converts the music list to and from CSV, JSON, Markdown and plain text
package formatter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Format names an import/export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json", "":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// FormatFromPath guesses the format from a file extension, falling back to fallback.
func FormatFromPath(path string, fallback Format) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return fallback
	}
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return fallback
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	default:
		return "." + string(f)
	}
}

var csvHeaders = []string{"music_id", "title", "favorite", "skip", "memo"}

// ExportToCSV writes one row per entry with columns music_id, title, favorite, skip, memo.
func ExportToCSV(views []models.MergedMusicView) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range views {
		record := []string{v.ExternalID, v.Title, boolString(v.Favorite), boolString(v.Skip), v.Memo}
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

// ExportToJSON writes the entries as an indented JSON array.
func ExportToJSON(views []models.MergedMusicView) ([]byte, error) {
	if views == nil {
		views = []models.MergedMusicView{}
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToMarkdown writes a titled list with favorite and skip markers and links to each video.
func ExportToMarkdown(views []models.MergedMusicView, title string) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Music List"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Entries**: %d\n\n", len(views))

	for i, v := range views {
		var marks []string
		if v.Favorite {
			marks = append(marks, "★")
		}
		if v.Skip {
			marks = append(marks, "skip")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " (" + strings.Join(marks, ", ") + ")"
		}
		fmt.Fprintf(&buf, "%d. [%s](https://www.nicovideo.jp/watch/%s) `%s`%s\n", i+1, v.Title, v.ExternalID, v.ExternalID, suffix)
		if v.Memo != "" {
			fmt.Fprintf(&buf, "   > %s\n", v.Memo)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText writes one "music_id<TAB>title" line per entry, the format [ParseImport] reads back.
func ExportToText(views []models.MergedMusicView) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range views {
		fmt.Fprintf(&buf, "%s\t%s\n", v.ExternalID, v.Title)
	}
	return buf.Bytes(), nil
}

// Export renders views in format.
func Export(views []models.MergedMusicView, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(views)
	case FormatMarkdown:
		return ExportToMarkdown(views, "")
	case FormatText:
		return ExportToText(views)
	case FormatJSON:
		return ExportToJSON(views)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport renders views and writes them to path, creating parent directories.
func WriteExport(views []models.MergedMusicView, format Format, path string) (string, error) {
	if path == "" {
		path = "music_export" + format.Extension()
	}

	data, err := Export(views, format)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ImportOptions tune [ParseImport].
type ImportOptions struct {
	// AllowMissingTitle keeps rows that have an id but no title so titles can be resolved later.
	AllowMissingTitle bool
}

// RowError reports a rejected import row.
type RowError struct {
	Line    int
	Field   string
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s %s", e.Line, e.Field, e.Message)
}

func (e *RowError) Unwrap() error { return shared.ErrInvalidInput }

type importRow struct {
	line       int
	externalID string
	title      string
}

// ParseImport reads bulk-import rows from r.
//
// Rows with both fields empty are dropped. A row with only one field filled is an error,
// and any error rejects the whole input so nothing is imported. Fields are trimmed.
func ParseImport(r io.Reader, format Format, opts ImportOptions) ([]models.BulkImportItem, error) {
	var (
		rows []importRow
		err  error
	)

	switch format {
	case FormatCSV:
		rows, err = readCSVRows(r)
	case FormatJSON:
		rows, err = readJSONRows(r)
	case FormatText:
		rows, err = readTextRows(r)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return nil, err
	}

	items := make([]models.BulkImportItem, 0, len(rows))
	var errs []error
	for _, row := range rows {
		id, title := strings.TrimSpace(row.externalID), strings.TrimSpace(row.title)
		if id == "" && title == "" {
			continue
		}
		if id == "" {
			errs = append(errs, &RowError{Line: row.line, Field: "music_id", Message: "is required"})
			continue
		}
		if title == "" && !opts.AllowMissingTitle {
			errs = append(errs, &RowError{Line: row.line, Field: "title", Message: "is required"})
			continue
		}
		items = append(items, models.BulkImportItem{ExternalID: id, Title: title})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no rows to import", shared.ErrInvalidInput)
	}
	return items, nil
}

// readCSVRows reads music_id,title columns. A header row is recognised and used to locate the columns.
func readCSVRows(r io.Reader) ([]importRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV: %v", shared.ErrInvalidInput, err)
	}

	idCol, titleCol, start := 0, 1, 0
	if len(records) > 0 {
		for i, h := range records[0] {
			switch strings.ToLower(strings.TrimSpace(h)) {
			case "music_id", "id", "video_id":
				idCol, start = i, 1
			case "title":
				titleCol, start = i, 1
			}
		}
	}

	rows := make([]importRow, 0, len(records))
	for i := start; i < len(records); i++ {
		rec := records[i]
		row := importRow{line: i + 1}
		if idCol < len(rec) {
			row.externalID = rec[idCol]
		}
		if titleCol < len(rec) {
			row.title = rec[titleCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readJSONRows reads an array of objects carrying music_id and title; other keys are ignored.
func readJSONRows(r io.Reader) ([]importRow, error) {
	var items []models.BulkImportItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: failed to read JSON: %v", shared.ErrInvalidInput, err)
	}

	rows := make([]importRow, 0, len(items))
	for i, item := range items {
		rows = append(rows, importRow{line: i + 1, externalID: item.ExternalID, title: item.Title})
	}
	return rows, nil
}

// readTextRows reads "music_id<TAB>title" or "music_id title" lines. Lines starting with # are comments.
func readTextRows(r io.Reader) ([]importRow, error) {
	var rows []importRow
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(text, "#") {
			continue
		}

		var id, title string
		if before, after, ok := strings.Cut(text, "\t"); ok {
			id, title = before, after
		} else {
			id, title, _ = strings.Cut(text, " ")
		}
		rows = append(rows, importRow{line: line, externalID: id, title: title})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read text: %v", shared.ErrInvalidInput, err)
	}
	return rows, nil
}
