package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/repository"
	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

const (
	SheetMenu     = "Weekly Menu"
	SheetShopping = "Shopping List"
	SheetPantry   = "Pantry"
	SheetMetrics  = "Metrics"
)

// Snapshotter loads everything stored for a household.
type Snapshotter interface {
	Snapshot(ctx context.Context, householdID string) (household.Snapshot, error)
}

// Service produces XLSX workbooks of a household's plan.
type Service struct {
	source Snapshotter
	logger *slog.Logger
}

func NewService(source Snapshotter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// ExportHouseholdXLSX returns a workbook with the menu, shopping list,
// pantry and latest metrics.
func (s *Service) ExportHouseholdXLSX(ctx context.Context, hh string) ([]byte, error) {
	start := time.Now()

	snap, err := s.source.Snapshot(ctx, hh)
	if err != nil {
		return nil, fmt.Errorf("load household: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, name := range []string{SheetMenu, SheetShopping, SheetPantry, SheetMetrics} {
		if index, _ := f.GetSheetIndex(name); index == -1 {
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
		}
	}
	_ = f.DeleteSheet("Sheet1")
	activeIndex, _ := f.GetSheetIndex(SheetMenu)
	f.SetActiveSheet(activeIndex)

	writeMenu(f, snap.Menu)
	writeShopping(f, snap.ShoppingList)
	writePantry(f, snap.Household.Products)
	writeMetrics(f, snap.Metrics, snap.Recommendations)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"household", hh,
		"days", len(snap.Menu.WeeklyMenu),
		"shopping_items", len(snap.ShoppingList),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheetWriter(f *excelize.File, sheet string, headers ...string) *sheetWriter {
	w := &sheetWriter{f: f, sheet: sheet, row: 1}
	vals := make([]any, len(headers))
	for i, h := range headers {
		vals[i] = h
	}
	w.write(vals...)
	return w
}

func (w *sheetWriter) write(vals ...any) {
	for i, v := range vals {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
	w.row++
}

func writeMenu(f *excelize.File, plan entity.WeeklyMenuPlan) {
	w := newSheetWriter(f, SheetMenu,
		"Day", "Recipe", "Description", "Protein", "Side",
		"Cooking Time", "Servings", "Difficulty", "Ingredients", "Calories")
	for _, d := range plan.WeeklyMenu {
		ings := make([]string, 0, len(d.Recipe.Ingredients))
		for _, ing := range d.Recipe.Ingredients {
			ings = append(ings, strings.TrimSpace(ing.Quantity+" "+ing.Unit+" "+ing.Name))
		}
		w.write(d.Day, d.Recipe.Name, d.Recipe.Description, d.Protein, d.Side,
			d.Recipe.CookingTime, d.Recipe.Servings, d.Recipe.Difficulty,
			truncate(strings.Join(ings, ", "), 250), d.Recipe.NutritionalInfo.Calories)
	}
	_ = f.SetColWidth(SheetMenu, "A", "A", 8)
	_ = f.SetColWidth(SheetMenu, "B", "C", 32)
	_ = f.SetColWidth(SheetMenu, "D", "E", 18)
	_ = f.SetColWidth(SheetMenu, "I", "I", 60)
}

func writeShopping(f *excelize.File, items []entity.ShoppingItem) {
	w := newSheetWriter(f, SheetShopping, "Category", "Item", "Quantity", "Unit", "Purchased")
	for _, g := range planner.GroupByCategory(items) {
		for _, it := range g.Items {
			purchased := ""
			if it.Purchased {
				purchased = "yes"
			}
			w.write(g.Category, it.Name, it.Quantity, it.Unit, purchased)
		}
	}
	_ = f.SetColWidth(SheetShopping, "A", "A", 14)
	_ = f.SetColWidth(SheetShopping, "B", "B", 28)
}

func writePantry(f *excelize.File, products []entity.Product) {
	w := newSheetWriter(f, SheetPantry, "Product", "Category", "Units", "Kg", "Unit Price", "Total Price")
	for _, p := range products {
		w.write(p.Name, p.Category, num(p.QuantityUnits), num(p.QuantityKg), num(p.UnitPrice), num(p.TotalPrice))
	}
	_ = f.SetColWidth(SheetPantry, "A", "A", 28)
}

func writeMetrics(f *excelize.File, rec *repository.MetricsRecord, recommendations []string) {
	w := newSheetWriter(f, SheetMetrics, "Metric", "Value")
	if rec != nil {
		m := rec.Report.Metrics
		w.write("Week", rec.WeekNumber)
		w.write("Waste %", m.WastePercentage)
		w.write("Estimated savings", m.EstimatedSavings)
		for i, v := range m.WeeklyWaste {
			w.write(fmt.Sprintf("Weekly waste %d", i+1), v)
		}
	}
	for i, r := range recommendations {
		w.write(fmt.Sprintf("Recommendation %d", i+1), truncate(r, 250))
	}
	_ = f.SetColWidth(SheetMetrics, "A", "A", 22)
	_ = f.SetColWidth(SheetMetrics, "B", "B", 80)
}

func num(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
