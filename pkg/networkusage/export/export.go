// Package export writes audit records as JSON or CSV for the CLI and for
// retention archives.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"mercator-hq/relay/pkg/networkusage"
)

// Exporter writes records to w.
type Exporter interface {
	Export(ctx context.Context, records []*networkusage.Entity, w io.Writer) error
}

// ForFormat returns the exporter for "json" or "csv".
func ForFormat(format string) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(true), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
}

// JSONExporter exports records as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records as a JSON array; an empty input yields "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*networkusage.Entity, w io.Writer) error {
	if records == nil {
		records = []*networkusage.Entity{}
	}
	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return networkusage.NewExportError("json", len(records), err)
	}
	return nil
}

// CSVExporter exports records as flat CSV rows.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header is the CSV column list.
var Header = []string{
	"id", "creation_time", "connection_type", "connection_key", "package_name",
	"url", "status", "download_size", "upload_size", "fc_run_id",
}

// Export writes one row per record.
func (e *CSVExporter) Export(ctx context.Context, records []*networkusage.Entity, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return networkusage.NewExportError("csv", len(records), err)
		}
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(recordToRow(r)); err != nil {
			return networkusage.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return networkusage.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(r *networkusage.Entity) []string {
	d := r.ConnectionDetails
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.CreationTime.UTC().Format(time.RFC3339),
		d.Type.String(),
		d.Key.Value(),
		d.PackageName,
		r.URL,
		r.Status.String(),
		strconv.FormatInt(r.DownloadSize, 10),
		strconv.FormatInt(r.UploadSize, 10),
		strconv.FormatInt(r.FCRunID, 10),
	}
}
