package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"grain_sim/internal/domain"
	"grain_sim/internal/recorder"
	sqlitestore "grain_sim/internal/store/sqlite"
)

type runSource interface {
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	ListObservations(ctx context.Context, runID string, limit int) ([]domain.Observation, error)
	ListRunEvents(ctx context.Context, runID string, limit int) ([]domain.RunEvent, error)
}

func main() {
	dbPath := flag.String("db", "data/grain_sim.db", "sqlite database written by the simulator")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	store, err := sqlitestore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	if err := runMonitor(store, *dbPath, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func runMonitor(src runSource, dbPath string, interval time.Duration) error {
	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	rowsTable := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0).
		SetSelectable(true, false)
	rowsTable.SetTitle("Observations").SetBorder(true)

	summaryView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	summaryView.SetTitle("Run").SetBorder(true)

	eventsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	eventsView.SetTitle("Events").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Reading %s | shortcuts: F10 quit, F5 refresh, Tab switch pane", dbPath))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(summaryView, 8, 0, false).
		AddItem(rowsTable, 0, 3, false).
		AddItem(eventsView, 0, 1, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	var selectedRunID string
	var lastRuns []domain.Run
	var detailsVersion uint64

	refreshRuns := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runs, err := src.ListRuns(ctx, 200)
		if err != nil {
			app.QueueUpdateDraw(func() {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		sort.SliceStable(runs, func(i, j int) bool {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		})
		app.QueueUpdateDraw(func() {
			lastRuns = runs
			renderRunsTable(runsTable, runs, selectedRunID)
		})
	}

	refreshDetailsAsync := func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)

		go func(selected string, v uint64) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			rows, rowsErr := src.ListObservations(ctx, selected, 0)
			events, eventsErr := src.ListRunEvents(ctx, selected, 100)

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				summaryView.SetText(renderSummary(findRun(lastRuns, selected), rows))
				if rowsErr != nil {
					rowsTable.Clear()
					rowsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("error: %v", rowsErr)))
				} else {
					renderRowsTable(rowsTable, rows)
				}
				if eventsErr != nil {
					eventsView.SetText(fmt.Sprintf("error: %v", eventsErr))
				} else {
					eventsView.SetText(renderEvents(events))
				}
			})
		}(runID, version)
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].ID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go func() {
				refreshRuns()
				refreshDetailsAsync(selectedRunID)
			}()
			statusView.SetText("Manual refresh")
			return nil
		case tcell.KeyTAB:
			if app.GetFocus() == runsTable {
				app.SetFocus(rowsTable)
			} else {
				app.SetFocus(runsTable)
			}
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		refreshRuns()
		for range ticker.C {
			refreshRuns()
			if selectedRunID == "" {
				continue
			}
			refreshDetailsAsync(selectedRunID)
		}
	}()

	return app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run()
}

func renderRunsTable(table *tview.Table, runs []domain.Run, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Status", "Years", "Rows", "Started"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, r := range runs {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(r.ID)))
		table.SetCell(row, 1, tview.NewTableCell(string(r.Status)).SetTextColor(statusColor(r.Status)))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d-%d", r.StartYear, r.HorizonYear)))
		table.SetCell(row, 3, tview.NewTableCell(humanize.Comma(int64(r.Rows))))
		table.SetCell(row, 4, tview.NewTableCell(humanize.Time(r.StartedAt)))
		if r.ID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func renderRowsTable(table *tview.Table, rows []domain.Observation) {
	table.Clear()
	headers := []string{"t", "Year", "Month", "Precip(cm)", "Temp(C)", "Height(cm)", "Grazers", "Pests"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, o := range rows {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", o.Timepoint)))
		table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", o.Year)))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", o.Month)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.2f", recorder.InchesToCentimeters(o.Precipitation))))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.2f", recorder.FahrenheitToCelsius(o.Temperature))))
		table.SetCell(row, 5, tview.NewTableCell(fmt.Sprintf("%.2f", recorder.InchesToCentimeters(o.CropHeight))))
		table.SetCell(row, 6, tview.NewTableCell(fmt.Sprintf("%d", o.GrazerCount)))
		table.SetCell(row, 7, tview.NewTableCell(humanize.Comma(int64(o.PestCount))))
	}
}

func renderSummary(run *domain.Run, rows []domain.Observation) string {
	if run == nil {
		return "No run selected"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Run %s  status=%s  seed=%d\n", run.ID, run.Status, run.Seed))
	b.WriteString(fmt.Sprintf("Years %d -> %d  started %s\n", run.StartYear, run.HorizonYear, humanize.Time(run.StartedAt)))
	if run.FinishedAt != nil {
		b.WriteString(fmt.Sprintf("Finished after %s\n", run.FinishedAt.Sub(run.StartedAt)))
	}
	if run.LastError != "" {
		b.WriteString("[red]error:[-] " + trimLine(run.LastError, 120) + "\n")
	}
	if len(rows) > 0 {
		peakHeight, peakPests := 0.0, 0
		for _, o := range rows {
			if o.CropHeight > peakHeight {
				peakHeight = o.CropHeight
			}
			if o.PestCount > peakPests {
				peakPests = o.PestCount
			}
		}
		last := rows[len(rows)-1]
		b.WriteString(fmt.Sprintf(
			"%d rows, last %d/%02d  peak height=%.2fcm  peak pests=%s\n",
			len(rows), last.Year, last.Month,
			recorder.InchesToCentimeters(peakHeight), humanize.Comma(int64(peakPests)),
		))
	}
	return b.String()
}

func renderEvents(items []domain.RunEvent) string {
	if len(items) == 0 {
		return "No events"
	}
	var b strings.Builder
	for _, e := range items {
		b.WriteString(fmt.Sprintf(
			"[%s] %s %s\n  reason: %s\n",
			e.CreatedAt.Format("15:04:05"),
			e.Actor,
			e.Action,
			trimLine(e.Reason, 100),
		))
		if detail := payloadSummary(e.Payload); detail != "" {
			b.WriteString("  payload: " + trimLine(detail, 160) + "\n")
		}
	}
	return b.String()
}

func payloadSummary(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "{}" {
		return ""
	}

	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err == nil {
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, kv[k]))
		}
		return strings.Join(parts, ", ")
	}
	return trimmed
}

func findRun(runs []domain.Run, id string) *domain.Run {
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i]
		}
	}
	return nil
}

func statusColor(s domain.RunStatus) tcell.Color {
	switch s {
	case domain.RunStatusDone:
		return tcell.ColorGreen
	case domain.RunStatusFailed:
		return tcell.ColorRed
	default:
		return tcell.ColorYellow
	}
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
