package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/multibot/pkg/loader"
)

type loadOptions struct {
	persona  string
	index    string
	file     string
	url      string
	dataDir  string
	defaults bool
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	lo := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load documents into persona indexes",
		Long: `Load a JSON batch ([{"id","title","text"}]) or a crawled site into a
persona's index. With --defaults every persona gets its bundled file from
--data-dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, opts, lo)
		},
	}

	f := cmd.Flags()
	f.StringVar(&lo.persona, "persona", "", "Persona whose index receives the documents")
	f.StringVar(&lo.index, "index", "", "Index name (overrides the persona's index)")
	f.StringVar(&lo.file, "file", "", "JSON batch file")
	f.StringVar(&lo.url, "url", "", "Site to crawl and load")
	f.StringVar(&lo.dataDir, "data-dir", "data", "Directory holding the bundled persona files")
	f.BoolVar(&lo.defaults, "defaults", false, "Load the bundled file of every persona")
	return cmd
}

func runLoad(ctx context.Context, opts *rootOptions, lo *loadOptions) error {
	var bar *progressbar.ProgressBar
	progress := loader.WithProgress(func(r loader.Report) {
		if bar != nil {
			bar.Set(r.Succeeded + r.Failed)
		}
	})

	p, err := newPlatform(ctx, opts.config, progress)
	if err != nil {
		return err
	}
	defer p.Close()

	type job struct {
		index string
		file  string
	}
	var jobs []job

	switch {
	case lo.defaults:
		keys := make([]string, 0, len(loader.DefaultFiles))
		for k := range loader.DefaultFiles {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			persona, err := p.bot.Registry().Get(key)
			if err != nil {
				color.Yellow("Skipping %s: %v", key, err)
				continue
			}
			jobs = append(jobs, job{index: persona.IndexName, file: filepath.Join(lo.dataDir, loader.DefaultFiles[key])})
		}
	case lo.file != "" || lo.url != "":
		index := lo.index
		if index == "" {
			key := lo.persona
			if key == "" {
				key = p.bot.Registry().ActivePersona().Key
			}
			persona, err := p.bot.Registry().Get(key)
			if err != nil {
				return err
			}
			index = persona.IndexName
		}
		if lo.url != "" {
			return loadSite(ctx, p, index, lo.url)
		}
		jobs = append(jobs, job{index: index, file: lo.file})
	default:
		return fmt.Errorf("nothing to load: pass --file, --url or --defaults")
	}

	for _, j := range jobs {
		f, err := os.Open(j.file)
		if err != nil {
			color.Red("✗ %v", err)
			continue
		}
		items, err := loader.Parse(f)
		f.Close()
		if err != nil {
			color.Red("✗ %s: %v", j.file, err)
			continue
		}

		bar = getProgressBar(len(items), fmt.Sprintf("Loading %s into %s...", filepath.Base(j.file), j.index))
		report := p.loader.Load(ctx, j.index, items)
		bar.Finish()
		bar = nil
		printReport(report)
	}
	return nil
}

func loadSite(ctx context.Context, p *platform, index, url string) error {
	color.Blue("\nStarting documentation pipeline for %s\n", url)

	spinner := getSpinner("Scraping documentation...")
	sc := p.scraperConfig()
	sc.OnProgress = func(string) { spinner.Add(1) }

	report, err := p.loader.LoadURL(ctx, index, url, sc, p.chunkConfig())
	spinner.Finish()
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(r loader.Report) {
	fmt.Println()
	if r.Failed == 0 {
		color.Green("✓ Loaded %d/%d documents into %s", r.Succeeded, r.Total, r.Index)
		return
	}
	color.Yellow("Loaded %d/%d documents into %s (%d failed)", r.Succeeded, r.Total, r.Index, r.Failed)
	for _, f := range r.Failures {
		color.Red("  ✗ %s: %s", f.ID, f.Error)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
