package pipeline

import (
	"context"
	"log/slog"
)

// runStage2 resolves missing LCCNs against the LC catalog: every ISBN
// is tried first, then a title search that only accepts an unambiguous
// single result. Rows keep flowing regardless of outcome; the final
// Status is derived in stage 3 from whether an LCCN made it through.
func (p *Pipeline) runStage2(ctx context.Context, inputPath string) error {
	ctx, span := tracer.Start(ctx, "pipeline:runStage2")
	defer span.End()

	records, err := readCheckpointCSV(inputPath, []string{colBibID, colTitle, colISBN, colLCCN})
	if err != nil {
		return err
	}

	prog := newStageProgress(p.opts.ConsoleOut, "looking up LCCNs", len(records))
	defer prog.Done()

	for i := range records {
		record := &records[i]

		if record.LCCN != "" {
			slog.DebugContext(ctx, "record already has LCCN", "bibid", record.BibID, "lccn", record.LCCN)
			prog.Increment()
			continue
		}
		if len(record.ISBNs) == 0 && record.Title == "" {
			prog.Increment()
			continue
		}

		p.stats.ItemsRequiringLookup++
		slog.DebugContext(ctx, "looking up LCCN", "bibid", record.BibID, "title", record.Title)

		record.LCCN = p.resolveLCCN(ctx, record)
		if record.LCCN == "" {
			p.stats.FailedLookups++
			slog.DebugContext(ctx, "LCCN not found", "bibid", record.BibID, "title", record.Title)
		}
		prog.Increment()
	}

	err = writeCSV(p.stage2Output, stage2Columns, records)
	if err != nil {
		return err
	}
	slog.Info("stage 2 results saved", "path", p.stage2Output)
	return nil
}

// resolveLCCN applies the ordered lookup policy, first success wins.
func (p *Pipeline) resolveLCCN(ctx context.Context, record *Record) string {
	for _, isbn := range record.ISBNs {
		lccn, err := p.catalog.SearchByISBN(ctx, isbn)
		if err != nil {
			slog.DebugContext(ctx, "isbn search failed", "bibid", record.BibID, "isbn", isbn, "err", err)
			continue
		}
		if lccn != "" {
			p.stats.SuccessfulISBNLookups++
			return lccn
		}
	}

	if record.Title == "" {
		return ""
	}
	lccn, err := p.catalog.SearchByTitle(ctx, record.Title)
	if err != nil {
		slog.DebugContext(ctx, "title search failed", "bibid", record.BibID, "err", err)
		return ""
	}
	if lccn != "" {
		p.stats.SuccessfulTitleLookups++
	}
	return lccn
}
