package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// ExportCSV writes downloads as CSV with a header row.
func ExportCSV(w io.Writer, downloads []*Download) error {
	cw := csv.NewWriter(w)
	header := []string{"downloaded_at", "bundle_id", "name", "version", "status", "size_bytes", "path", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, d := range downloads {
		row := []string{
			d.DownloadedAt.Format(time.RFC3339),
			d.BundleID,
			d.Name,
			d.Version,
			d.Status,
			strconv.FormatInt(d.SizeBytes, 10),
			d.Path,
			d.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ExportMarkdown writes downloads as a Markdown table.
func ExportMarkdown(w io.Writer, downloads []*Download) error {
	if _, err := fmt.Fprintln(w, "| Date | App | Version | Status | Size |"); err != nil {
		return fmt.Errorf("failed to write Markdown header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "|------|-----|---------|--------|------|"); err != nil {
		return fmt.Errorf("failed to write Markdown header: %w", err)
	}
	for _, d := range downloads {
		name := d.Name
		if name == "" {
			name = d.BundleID
		}
		size := ""
		if d.SizeBytes > 0 {
			size = humanize.IBytes(uint64(d.SizeBytes))
		}
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			d.DownloadedAt.Format("2006-01-02 15:04"), name, d.Version, d.Status, size); err != nil {
			return fmt.Errorf("failed to write Markdown row: %w", err)
		}
	}
	return nil
}
