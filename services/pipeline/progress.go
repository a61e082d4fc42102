package pipeline

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// stageProgress renders a single tracker per stage, the terminal
// counterpart of watching a long scrape crawl along.
type stageProgress struct {
	writer  progress.Writer
	tracker *progress.Tracker
}

func newStageProgress(out io.Writer, message string, total int) *stageProgress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetUpdateFrequency(time.Millisecond * 250)
	pw.SetTrackerPosition(progress.PositionRight)
	go pw.Render()

	tracker := &progress.Tracker{
		Message: message,
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)

	return &stageProgress{writer: pw, tracker: tracker}
}

func (p *stageProgress) Increment() {
	p.tracker.Increment(1)
}

func (p *stageProgress) Done() {
	p.tracker.MarkAsDone()
	// let the final frame flush before stopping the renderer
	for p.writer.IsRenderInProgress() && p.writer.LengthActive() > 0 {
		time.Sleep(time.Millisecond * 50)
	}
	p.writer.Stop()
}
