package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"
)

// Stats accumulates per-stage counters, mirrored to otel so long batch
// runs can be watched from the outside.
type Stats struct {
	// stage 1
	TotalRecords    int
	RecordsWithISBN int
	RecordsWithLCCN int
	RecordsWithBoth int
	RecordsWithNone int
	ErrorsStage1    int

	// stage 2
	ItemsRequiringLookup   int
	SuccessfulISBNLookups  int
	SuccessfulTitleLookups int
	FailedLookups          int

	// stage 3
	Total505Searches int
	Found505         int
	Empty505         int
	Missing505       int
	ErrorsStage3     int
}

var meter = otel.Meter("tocfetch.pipeline")

func (s *Stats) record(ctx context.Context) {
	gauges := []struct {
		name  string
		value int
	}{
		{"stage1_records", s.TotalRecords},
		{"stage1_errors", s.ErrorsStage1},
		{"stage2_lookups", s.ItemsRequiringLookup},
		{"stage2_failed_lookups", s.FailedLookups},
		{"stage3_searches", s.Total505Searches},
		{"stage3_found", s.Found505},
		{"stage3_errors", s.ErrorsStage3},
	}
	for _, g := range gauges {
		gauge, err := meter.Int64Gauge(g.name)
		if err != nil {
			continue
		}
		gauge.Record(ctx, int64(g.value))
	}
}

func percent(part, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}

// RenderSummary prints the closing per-stage counter table. Skipped
// stages are omitted.
func (s *Stats) RenderSummary(out io.Writer, ranStage1, ranStage2, ranStage3 bool) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Stage", "Counter", "Value", "%"})

	if ranStage1 {
		t.AppendRows([]table.Row{
			{"1", "records processed", s.TotalRecords, ""},
			{"1", "records with ISBN", s.RecordsWithISBN, percent(s.RecordsWithISBN, s.TotalRecords)},
			{"1", "records with LCCN", s.RecordsWithLCCN, percent(s.RecordsWithLCCN, s.TotalRecords)},
			{"1", "records with both", s.RecordsWithBoth, percent(s.RecordsWithBoth, s.TotalRecords)},
			{"1", "records with neither", s.RecordsWithNone, percent(s.RecordsWithNone, s.TotalRecords)},
			{"1", "errors", s.ErrorsStage1, ""},
		})
		t.AppendSeparator()
	}
	if ranStage2 {
		t.AppendRows([]table.Row{
			{"2", "lookups required", s.ItemsRequiringLookup, ""},
			{"2", "resolved by ISBN", s.SuccessfulISBNLookups, percent(s.SuccessfulISBNLookups, s.ItemsRequiringLookup)},
			{"2", "resolved by title", s.SuccessfulTitleLookups, percent(s.SuccessfulTitleLookups, s.ItemsRequiringLookup)},
			{"2", "failed lookups", s.FailedLookups, percent(s.FailedLookups, s.ItemsRequiringLookup)},
		})
		t.AppendSeparator()
	}
	if ranStage3 {
		t.AppendRows([]table.Row{
			{"3", "records processed", s.Total505Searches, ""},
			{"3", "505 content found", s.Found505, percent(s.Found505, s.Total505Searches)},
			{"3", "empty 505 tags", s.Empty505, percent(s.Empty505, s.Total505Searches)},
			{"3", "no 505 tag / no LCCN", s.Missing505, percent(s.Missing505, s.Total505Searches)},
			{"3", "errors", s.ErrorsStage3, ""},
		})
	}

	t.Render()
}
