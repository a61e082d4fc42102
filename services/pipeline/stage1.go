package pipeline

import (
	"context"
	"log/slog"
)

// runStage1 scrapes the OPAC record page for every BibID and writes
// the identifier checkpoint. A failed scrape records the error message
// on the row and moves on.
func (p *Pipeline) runStage1(ctx context.Context, inputPath string) error {
	ctx, span := tracer.Start(ctx, "pipeline:runStage1")
	defer span.End()

	records, err := readInputCSV(inputPath)
	if err != nil {
		return err
	}
	p.stats.TotalRecords = len(records)
	slog.Info("parsed input csv", "records", len(records))

	prog := newStageProgress(p.opts.ConsoleOut, "scraping catalog records", len(records))
	defer prog.Done()

	for i := range records {
		record := &records[i]

		ids, err := p.opac.Record(ctx, record.BibID)
		if err != nil {
			p.stats.ErrorsStage1++
			record.Err = err.Error()
			slog.DebugContext(ctx, "failed to scrape record", "bibid", record.BibID, "err", err)
			prog.Increment()
			continue
		}

		record.ISBNs = ids.ISBNs
		if len(ids.LCCNs) > 0 {
			record.LCCN = ids.LCCNs[0]
		}

		hasISBN := len(ids.ISBNs) > 0
		hasLCCN := len(ids.LCCNs) > 0
		switch {
		case hasISBN && hasLCCN:
			p.stats.RecordsWithBoth++
			p.stats.RecordsWithISBN++
			p.stats.RecordsWithLCCN++
		case hasISBN:
			p.stats.RecordsWithISBN++
		case hasLCCN:
			p.stats.RecordsWithLCCN++
		default:
			p.stats.RecordsWithNone++
		}

		prog.Increment()
	}

	err = writeCSV(p.stage1Output, stage1Columns, records)
	if err != nil {
		return err
	}
	slog.Info("stage 1 results saved", "path", p.stage1Output)
	return nil
}
