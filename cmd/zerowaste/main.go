package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/zerowaste/internal/app"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

const usage = `usage: zerowaste <command> [flags]

commands:
  scan      -household ID [-key K] image...   scan receipts and add their products
  family    -household ID -file family.json   save the family profile
  leftovers -household ID -file leftovers.json
  menu      -household ID                     plan the week
  metrics   -household ID                     estimate waste
  shopping  -household ID                     build the shopping list from the menu
  export    -household ID [-out file.xlsx]
  ask       "question"
  ping                                        check the model credentials
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type options struct {
	household string
	key       string
	file      string
	out       string
	verbose   bool
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	var opts options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&opts.household, "household", "default", "household id")
	fs.StringVar(&opts.key, "key", "", "provider API key (defaults to LLM_API_KEY)")
	fs.StringVar(&opts.file, "file", "", "JSON input file")
	fs.StringVar(&opts.out, "out", "", "output XLSX file path")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	switch cmd {
	case "scan":
		err = runScan(ctx, a, cfg.Planner.ReceiptConcurrency, opts, fs.Args())
	case "family":
		err = runFamily(ctx, a, opts)
	case "leftovers":
		err = runLeftovers(ctx, a, opts)
	case "menu":
		err = runMenu(ctx, a, opts)
	case "metrics":
		err = runMetrics(ctx, a, opts)
	case "shopping":
		err = runShopping(ctx, a, opts)
	case "export":
		err = runExport(ctx, a, opts)
	case "ask":
		err = runAsk(ctx, a, opts, strings.Join(fs.Args(), " "))
	case "ping":
		err = a.Planner.Ping(ctx, opts.key)
		if err == nil {
			fmt.Println("model: OK")
		}
	default:
		printError("unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		printError("Error: %v\n", err)
		if errors.Is(err, common.ErrConfiguration) {
			printError("  set LLM_API_KEY or pass -key\n")
		}
		os.Exit(1)
	}
}

func readImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func runScan(ctx context.Context, a *app.App, concurrency int, opts options, paths []string) error {
	if len(paths) == 0 {
		return errors.New("scan needs at least one image path")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu       sync.Mutex
		products int
		failures []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range paths {
		g.Go(func() error {
			payload, err := readImage(p)
			if err != nil {
				return err
			}
			res, err := a.Households.ProcessReceipt(gctx, opts.household, payload, opts.key)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, common.ErrConfiguration):
				// Every other scan would fail the same way.
				return err
			case err != nil:
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(p), err))
			default:
				products += len(res.Products)
				fmt.Printf("%s: %d products%s\n", filepath.Base(p), len(res.Products), degradedNote(res.Result))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Scan complete!\n")
	fmt.Printf("- Receipts: %d\n", len(paths))
	fmt.Printf("- Products added: %d\n", products)
	fmt.Printf("- Failures: %d\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return errors.New("-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

type familyFile struct {
	Members      []entity.FamilyMember       `json:"members"`
	Restrictions []entity.DietaryRestriction `json:"restrictions"`
	Prohibited   []string                    `json:"prohibitedDishes"`
}

func runFamily(ctx context.Context, a *app.App, opts options) error {
	var in familyFile
	if err := readJSON(opts.file, &in); err != nil {
		return err
	}
	fi := household.FamilyInput{Members: in.Members, Restrictions: in.Restrictions}
	for _, name := range in.Prohibited {
		fi.Prohibited = append(fi.Prohibited, entity.ProhibitedDish{Name: name})
	}
	recs, res, err := a.Households.SaveFamilyData(ctx, opts.household, fi, opts.key)
	if err != nil {
		return err
	}
	printList("Recommendations"+degradedNote(res), recs)
	return nil
}

func runLeftovers(ctx context.Context, a *app.App, opts options) error {
	var leftovers []entity.Leftover
	if err := readJSON(opts.file, &leftovers); err != nil {
		return err
	}
	recs, res, err := a.Households.SaveLeftovers(ctx, opts.household, leftovers, opts.key)
	if err != nil {
		return err
	}
	printList("Recommendations"+degradedNote(res), recs)
	return nil
}

func runMenu(ctx context.Context, a *app.App, opts options) error {
	plan, res, err := a.Households.GenerateMenu(ctx, opts.household, opts.key)
	if err != nil {
		return err
	}
	fmt.Printf("Weekly menu%s\n", degradedNote(res))
	for _, d := range plan.WeeklyMenu {
		fmt.Printf("- %-10s %s (%s, %s)\n", d.Day, d.Recipe.Name, d.Protein, d.Side)
	}
	if !res.Degraded && !plan.IsComplete() {
		fmt.Printf("  note: only %d of 7 days were planned\n", len(plan.WeeklyMenu))
	}
	return nil
}

func runMetrics(ctx context.Context, a *app.App, opts options) error {
	report, res, err := a.Households.GenerateMetrics(ctx, opts.household, opts.key)
	if err != nil {
		return err
	}
	fmt.Printf("Metrics%s\n", degradedNote(res))
	fmt.Printf("- Waste: %.1f%%\n", report.Metrics.WastePercentage)
	fmt.Printf("- Estimated savings: %.2f\n", report.Metrics.EstimatedSavings)
	fmt.Printf("- Weekly waste: %v\n", report.Metrics.WeeklyWaste)
	printList("Recommendations", report.Recommendations)
	return nil
}

func runShopping(ctx context.Context, a *app.App, opts options) error {
	items, err := a.Households.GenerateShoppingList(ctx, opts.household)
	if err != nil {
		return err
	}
	for _, g := range planner.GroupByCategory(items) {
		fmt.Printf("%s\n", g.Category)
		for _, it := range g.Items {
			fmt.Printf("  [ ] %s %s %s\n", it.Quantity, it.Unit, it.Name)
		}
	}
	return nil
}

func runExport(ctx context.Context, a *app.App, opts options) error {
	out := opts.out
	if out == "" {
		out = opts.household + ".xlsx"
	}
	data, err := a.Exporter.ExportHouseholdXLSX(ctx, opts.household)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Exported %s (%d bytes)\n", out, len(data))
	return nil
}

func runAsk(ctx context.Context, a *app.App, opts options, question string) error {
	out, err := a.Planner.Ask(ctx, question, opts.key)
	if err != nil {
		return err
	}
	if out.Degraded() {
		return fmt.Errorf("no answer: %s", out.Reason)
	}
	fmt.Println(out.Value.Response)
	return nil
}

func degradedNote(r household.Result) string {
	if !r.Degraded {
		return ""
	}
	return " (fallback: " + r.Reason + ")"
}

func printList(title string, items []string) {
	fmt.Println(title)
	for _, it := range items {
		fmt.Printf("- %s\n", it)
	}
}
