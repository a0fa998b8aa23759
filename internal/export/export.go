// Package export turns a finished search into a shareable document of the
// accounts that were found.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"handleprobe/internal/model"
	"handleprobe/internal/stats"
)

type Entry struct {
	Platform string `json:"platform"`
	Category string `json:"category"`
	URL      string `json:"url"`
	Status   string `json:"status"`
}

type Document struct {
	Handle     string         `json:"handle"`
	ExportedAt time.Time      `json:"exported_at"`
	Stats      model.RunStats `json:"stats"`
	Results    []Entry        `json:"results"`
}

// FoundResults keeps only found results, in dispatch order. Stats cover the
// whole collection.
func FoundResults(handle string, results []model.CheckResult, now time.Time) Document {
	doc := Document{
		Handle:     handle,
		ExportedAt: now.UTC(),
		Stats:      stats.Compute(results),
		Results:    make([]Entry, 0),
	}
	for _, r := range stats.Sort(results, stats.OrderDispatch) {
		if r.State != model.StateFound {
			continue
		}
		doc.Results = append(doc.Results, Entry{
			Platform: r.SiteName(),
			Category: r.Task.Site.Category,
			URL:      r.Task.DisplayURL(),
			Status:   string(r.State),
		})
	}
	return doc
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var header = []string{"platform", "category", "url", "status"}

func WriteCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range doc.Results {
		if err := cw.Write([]string{e.Platform, e.Category, e.URL, e.Status}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// WriteXLSX writes a workbook with the found accounts on one sheet and the
// run summary on another.
func WriteXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]any, 0, len(doc.Results)+1)
	rows = append(rows, []any{"Platform", "Category", "URL", "Status"})
	for _, e := range doc.Results {
		rows = append(rows, []any{e.Platform, e.Category, e.URL, e.Status})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	summary := [][]any{
		{"Handle", doc.Handle},
		{"Exported at", doc.ExportedAt.Format(time.RFC3339)},
		{"Checked", doc.Stats.Total},
		{"Found", doc.Stats.Found},
		{"Not found", doc.Stats.NotFound},
		{"Errors", doc.Stats.Errors},
		{"Mean latency (ms)", doc.Stats.MeanLatencyMS},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// FormatFor picks a format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatJSON
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename is the suggested download name for doc.
func (f Format) Filename(doc Document) string {
	return "handleprobe-" + doc.Handle + "-" + strconv.FormatInt(doc.ExportedAt.Unix(), 10) + "." + string(f)
}

func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, doc)
	case FormatXLSX:
		return WriteXLSX(w, doc)
	default:
		return WriteJSON(w, doc)
	}
}

func WriteFile(path string, doc Document) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, FormatFor(path), doc); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
