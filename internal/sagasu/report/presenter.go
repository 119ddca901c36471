// Package report converts aggregation results into chat-renderable blocks
// and, for large result sets, a downloadable CSV export.
package report

import (
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"

	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// InlineLimit is the largest result set rendered as inline blocks.  Anything
// bigger becomes a short notice plus a CSV export.
const InlineLimit = 10

// Block is one visual unit of the reply: an optional bold title and a list
// of label/value lines.
type Block struct {
	Title string
	Lines []string
}

// Export describes a tabular file to attach to the reply.
type Export struct {
	Filename string
	Columns  []string
	Rows     [][]string
}

// Field sets offered to the presenter.  The default set is what an asset
// lookup shows; the full set is forced by email queries.
var (
	DefaultAssetFields = []string{"Asset Name", "AIN", "Serial Number", "Purchase Date", "Assigned To"}
	FullAssetFields    = []string{"Asset Name", "AIN", "Serial Number", "Purchase Date", "Assigned To", "Email", "Location", "Manufacturer", "Group"}
	LicenseFields      = []string{"License Name", "Expires On", "Vendor", "License Key", "ID"}
)

const dateLayout = "2006-01-02"

// Present renders a titled result set.  Zero records yield a single
// "no results" block and no export; up to InlineLimit records yield one block
// per record; anything larger yields a notice block plus an Export holding
// every row.
func Present(title string, fields []string, rows [][]string) ([]Block, *Export) {
	if len(rows) == 0 {
		return []Block{
			{Title: title},
			{Lines: []string{"No results found."}},
		}, nil
	}

	if len(rows) > InlineLimit {
		notice := fmt.Sprintf("%d results — full list attached as CSV.", len(rows))
		return []Block{
				{Title: title},
				{Lines: []string{notice}},
			}, &Export{
				Filename: exportFilename(title),
				Columns:  fields,
				Rows:     rows,
			}
	}

	blocks := []Block{{Title: title}}
	for _, row := range rows {
		lines := make([]string, 0, len(fields))
		for i, field := range fields {
			value := "-"
			if i < len(row) && row[i] != "" {
				value = row[i]
			}
			lines = append(lines, field+": "+value)
		}
		blocks = append(blocks, Block{Lines: lines})
	}
	return blocks, nil
}

// exportFilename derives a unique, filesystem-safe CSV name from the title.
func exportFilename(title string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, title)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%s.csv", slug, uuid.NewString()[:8])
}

// AssetRows projects assets onto the given field set.
func AssetRows(assets []sonar.Asset, fields []string) [][]string {
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		row := make([]string, 0, len(fields))
		for _, f := range fields {
			row = append(row, assetField(a, f))
		}
		rows = append(rows, row)
	}
	return rows
}

func assetField(a sonar.Asset, field string) string {
	switch field {
	case "Asset Name":
		return a.Name
	case "AIN":
		return a.AIN
	case "Serial Number":
		return a.SerialNumber
	case "Purchase Date":
		if a.PurchaseDate.IsZero() {
			return ""
		}
		return a.PurchaseDate.Format(dateLayout)
	case "Assigned To":
		return a.AssignedTo
	case "Email":
		return a.AssignedToEmail
	case "Location":
		return a.LocationName
	case "Manufacturer":
		return a.Manufacturer
	case "Group":
		return a.GroupName
	default:
		return ""
	}
}

// LicenseRows projects licenses onto the license field set.
func LicenseRows(licenses []sonar.License) [][]string {
	rows := make([][]string, 0, len(licenses))
	for _, lic := range licenses {
		expiry := ""
		if !lic.ExpiryDate.IsZero() {
			expiry = lic.ExpiryDate.Format(dateLayout)
		}
		rows = append(rows, []string{
			lic.Name,
			expiry,
			lic.Vendor,
			lic.LicenseKey,
			fmt.Sprintf("%d", lic.ID),
		})
	}
	return rows
}

// RenderText flattens blocks into the plaintext body of a chat message.
func RenderText(blocks []Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		if blk.Title != "" {
			b.WriteString(blk.Title)
			b.WriteString("\n")
		}
		for _, line := range blk.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHTML renders blocks as the formatted body of a chat message.
func RenderHTML(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Title != "" {
			fmt.Fprintf(&b, "<p><strong>%s</strong></p>", html.EscapeString(blk.Title))
		}
		if len(blk.Lines) > 0 {
			escaped := make([]string, 0, len(blk.Lines))
			for _, line := range blk.Lines {
				escaped = append(escaped, html.EscapeString(line))
			}
			fmt.Fprintf(&b, "<p>%s</p>", strings.Join(escaped, "<br/>"))
		}
	}
	return b.String()
}
