package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/maltedev/price-spread/internal/models"
	"github.com/xuri/excelize/v2"
)

const SheetName = "data"

var Header = []string{"link", "external id", "name", "seller", "full price", "discounted price", "discount"}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

type Row struct {
	Link            string
	ExternalID      string
	Name            string
	Seller          string
	FullPrice       int
	DiscountedPrice int
	Discount        int
}

func RowFromProduct(p models.AcceptedProduct) Row {
	return Row{
		Link:            p.Link,
		ExternalID:      p.ID,
		Name:            p.Name,
		Seller:          p.Seller,
		FullPrice:       p.FullPrice,
		DiscountedPrice: p.DiscountedPrice,
		Discount:        p.Discount,
	}
}

func RowsFromProducts(products []models.AcceptedProduct) []Row {
	rows := make([]Row, 0, len(products))
	for _, p := range products {
		rows = append(rows, RowFromProduct(p))
	}
	return rows
}

// Artifact is a transient spreadsheet on disk. The owner removes it once
// delivery is finished.
type Artifact struct {
	Path string
	Rows int
}

func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

type Exporter struct {
	dir    string
	logger *slog.Logger
}

// NewExporter writes artifacts into dir, or the system temp dir when empty.
func NewExporter(dir string) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: slog.Default().With("component", "exporter"),
	}
}

func (e *Exporter) Export(ctx context.Context, name string, rows []Row) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to address row %d: %w", i, err)
		}
		values := []interface{}{r.Link, r.ExternalID, r.Name, r.Seller, r.FullPrice, r.DiscountedPrice, r.Discount}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if e.dir != "" {
		if err := os.MkdirAll(e.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create export dir: %w", err)
		}
	}

	out, err := os.CreateTemp(e.dir, fileStem(name)+"-*.xlsx")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		os.Remove(out.Name())
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}

	e.logger.Debug("artifact exported", "path", out.Name(), "rows", len(rows))
	return &Artifact{Path: out.Name(), Rows: len(rows)}, nil
}

func fileStem(name string) string {
	stem := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if stem == "" {
		return "export"
	}
	if r := []rune(stem); len(r) > 64 {
		stem = string(r[:64])
	}
	return stem
}
