package pipeline

import (
	"context"
	"log/slog"
	"tocfetch/lib/marcxml"
)

// runStage3 fetches the MARCXML for every resolved LCCN and extracts
// the 505 contents note, writing the final output CSV. Records without
// an LCCN become NotFound; fetch or parse failures become Error; a
// resolved record without a 505 tag is still Found, just with empty
// content.
func (p *Pipeline) runStage3(ctx context.Context, inputPath string) error {
	ctx, span := tracer.Start(ctx, "pipeline:runStage3")
	defer span.End()

	records, err := readCheckpointCSV(inputPath, []string{colBibID, colTitle, colLCCN})
	if err != nil {
		return err
	}
	p.stats.Total505Searches = len(records)
	slog.Info("entries to process for 505 retrieval", "records", len(records))

	prog := newStageProgress(p.opts.ConsoleOut, "retrieving 505 fields", len(records))
	defer prog.Done()

	for i := range records {
		p.enrich505(ctx, &records[i])
		prog.Increment()
	}

	err = writeCSV(p.opts.Output, outputColumns, records)
	if err != nil {
		return err
	}
	slog.Info("final results saved", "path", p.opts.Output)
	return nil
}

func (p *Pipeline) enrich505(ctx context.Context, record *Record) {
	record.Content505 = ""

	if record.LCCN == "" {
		record.Status = StatusNotFound
		p.stats.Missing505++
		return
	}

	xmlContent, err := p.permalink.FetchRecord(ctx, record.LCCN)
	if err != nil {
		record.Status = StatusError
		p.stats.ErrorsStage3++
		slog.DebugContext(ctx, "failed to fetch marcxml", "bibid", record.BibID, "lccn", record.LCCN, "err", err)
		return
	}

	content, found, err := marcxml.Extract505(xmlContent)
	if err != nil {
		record.Status = StatusError
		p.stats.ErrorsStage3++
		slog.DebugContext(ctx, "failed to parse marcxml", "bibid", record.BibID, "lccn", record.LCCN, "err", err)
		return
	}

	record.Status = StatusFound
	record.Content505 = content
	switch {
	case !found:
		p.stats.Missing505++
		slog.DebugContext(ctx, "marcxml has no 505 tag", "bibid", record.BibID, "lccn", record.LCCN)
	case content == "":
		p.stats.Empty505++
		slog.DebugContext(ctx, "505 tag present but empty", "bibid", record.BibID, "lccn", record.LCCN)
	default:
		p.stats.Found505++
	}
}
