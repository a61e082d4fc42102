// Package pipeline sequences the three enrichment stages over CSV
// checkpoints: OPAC identifier scrape, LCCN lookup, 505 retrieval.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"tocfetch/lib/marcxml"
	"tocfetch/lib/restyutil"
	"tocfetch/lib/scrapers/evergreen"
	"tocfetch/lib/scrapers/loccatalog"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("tocfetch.services.pipeline")

// Endpoints are the remote services each stage talks to. Overridable
// from the config file so other Evergreen installations can use the
// tool, and so tests can point it at fakes.
type Endpoints struct {
	OpacBaseUrl      string `json:"opac_base_url"`
	CatalogBaseUrl   string `json:"catalog_base_url"`
	PermalinkBaseUrl string `json:"permalink_base_url"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpacBaseUrl:      "https://islandpines.roblib.upei.ca",
		CatalogBaseUrl:   "https://catalog.loc.gov",
		PermalinkBaseUrl: "https://lccn.loc.gov",
	}
}

type Options struct {
	Input  string
	Output string

	SkipStage1 bool
	SkipStage2 bool
	SkipStage3 bool

	Delay      time.Duration
	MaxRetries int

	// persist raw HTTP exchanges under <temp>/debug
	Debug bool
	// delete intermediate checkpoints after a successful run
	CleanTemp bool

	Endpoints Endpoints

	// progress + summary destination, defaults to stderr
	ConsoleOut io.Writer
}

type Pipeline struct {
	opts  Options
	stats Stats

	opac      *evergreen.Client
	catalog   *loccatalog.Client
	permalink *marcxml.Client

	tempDir      string
	stage1Output string
	stage2Output string
}

func New(opts Options) (*Pipeline, error) {
	if opts.Input == "" || opts.Output == "" {
		return nil, configErrorf("both input and output paths are required")
	}
	if opts.ConsoleOut == nil {
		opts.ConsoleOut = os.Stderr
	}
	defaults := DefaultEndpoints()
	if opts.Endpoints.OpacBaseUrl == "" {
		opts.Endpoints.OpacBaseUrl = defaults.OpacBaseUrl
	}
	if opts.Endpoints.CatalogBaseUrl == "" {
		opts.Endpoints.CatalogBaseUrl = defaults.CatalogBaseUrl
	}
	if opts.Endpoints.PermalinkBaseUrl == "" {
		opts.Endpoints.PermalinkBaseUrl = defaults.PermalinkBaseUrl
	}

	tempDir := filepath.Join(filepath.Dir(opts.Output), "temp")
	err := os.MkdirAll(tempDir, 0777)
	if err != nil {
		return nil, err
	}

	var output restyutil.InstrumentOutput
	if opts.Debug {
		fsOutput, err := restyutil.NewFilesystemOutput(filepath.Join(tempDir, "debug"))
		if err != nil {
			return nil, err
		}
		output = fsOutput
	}

	opac, err := evergreen.NewClient(evergreen.ClientOptions{
		BaseUrl:          opts.Endpoints.OpacBaseUrl,
		Delay:            opts.Delay,
		MaxRetries:       opts.MaxRetries,
		InstrumentOutput: output,
	})
	if err != nil {
		return nil, err
	}
	catalog, err := loccatalog.NewClient(loccatalog.ClientOptions{
		BaseUrl:          opts.Endpoints.CatalogBaseUrl,
		Delay:            opts.Delay,
		MaxRetries:       opts.MaxRetries,
		InstrumentOutput: output,
	})
	if err != nil {
		return nil, err
	}
	permalink, err := marcxml.NewClient(marcxml.ClientOptions{
		BaseUrl:          opts.Endpoints.PermalinkBaseUrl,
		Delay:            opts.Delay,
		MaxRetries:       opts.MaxRetries,
		InstrumentOutput: output,
	})
	if err != nil {
		return nil, err
	}

	basename := strings.TrimSuffix(filepath.Base(opts.Output), filepath.Ext(opts.Output))

	return &Pipeline{
		opts:         opts,
		opac:         opac,
		catalog:      catalog,
		permalink:    permalink,
		tempDir:      tempDir,
		stage1Output: filepath.Join(tempDir, fmt.Sprintf("%s_stage1.csv", basename)),
		stage2Output: filepath.Join(tempDir, fmt.Sprintf("%s_stage2.csv", basename)),
	}, nil
}

func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Run drives all three stages. Configuration errors abort with a
// non-nil error; per-record failures only show up in Status columns.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()

	if _, err := os.Stat(p.opts.Input); err != nil {
		return configErrorf("input file %q not found", p.opts.Input)
	}

	current := p.opts.Input

	if !p.opts.SkipStage1 {
		slog.Info("stage 1: extracting identifiers from catalog", "input", current)
		err := p.runStage1(ctx, current)
		if err != nil {
			return fmt.Errorf("stage 1: %w", err)
		}
		current = p.stage1Output
	} else {
		slog.Info("stage 1: skipped")
	}

	if !p.opts.SkipStage2 {
		slog.Info("stage 2: looking up missing LCCNs", "input", current)
		err := p.runStage2(ctx, current)
		if err != nil {
			return fmt.Errorf("stage 2: %w", err)
		}
		current = p.stage2Output
	} else {
		slog.Info("stage 2: skipped")
	}

	if !p.opts.SkipStage3 {
		slog.Info("stage 3: retrieving 505 fields", "input", current)
		err := p.runStage3(ctx, current)
		if err != nil {
			return fmt.Errorf("stage 3: %w", err)
		}
	} else {
		slog.Info("stage 3: skipped")
	}

	p.stats.record(ctx)
	p.stats.RenderSummary(
		p.opts.ConsoleOut,
		!p.opts.SkipStage1,
		!p.opts.SkipStage2,
		!p.opts.SkipStage3,
	)

	if p.opts.CleanTemp {
		p.cleanTemp()
	}
	return nil
}

func (p *Pipeline) cleanTemp() {
	slog.Info("cleaning up intermediate files")
	os.Remove(p.stage1Output)
	os.Remove(p.stage2Output)
	// only goes through when nothing else (debug dumps) is left inside
	os.Remove(p.tempDir)
}
