// Command buildctl drives the submodule build graph described by a recipe
// package: given one or more target names, it resolves dependencies,
// computes content-addressed hashes and installs everything required,
// in parallel, with resumable state (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"

	"github.com/osresearch/linux-builder/internal/builder"
	"github.com/osresearch/linux-builder/internal/cache"
	"github.com/osresearch/linux-builder/internal/config"
	"github.com/osresearch/linux-builder/internal/ctxutil"
	"github.com/osresearch/linux-builder/internal/merkle"
	"github.com/osresearch/linux-builder/internal/oninterrupt"
	"github.com/osresearch/linux-builder/internal/submodule"
	"github.com/osresearch/linux-builder/internal/trace"
	"github.com/osresearch/linux-builder/recipe"
)

// Recipe is implemented by a generated or hand-written package that
// declares the submodule graph for a particular image (e.g. a coreboot +
// kernel + initramfs build). main looks one up by name via recipes.
type Recipe interface {
	// Submodules returns every submodule the recipe defines. Dependencies
	// may reference each other directly; main resolves any remaining
	// string-named references via Registry.Freeze.
	Submodules() []*submodule.Submodule
}

var recipes = map[string]Recipe{
	"linux-image": recipe.LinuxImage{},
}

func main() {
	checkOnly := flag.Bool("check", false, "resolve and hash the build graph without building anything")
	doCache := flag.Bool("cache", false, "write every installed cacheable submodule's artifact to build/cache")
	traceFile := flag.String("trace", "", "write a chrome://tracing event log to this path")
	reportFile := flag.String("report", "", "after building, write every ReportHashes submodule's output hashes to this path")
	compareFile := flag.String("compare", "", "after building, diff output hashes against a report saved with -report")
	flag.Parse()

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		trace.Sink(f)
	}

	if flag.NArg() == 0 {
		log.Fatal("usage: buildctl [-check|-cache|-report <path>|-compare <path>] <recipe> [<target>...]")
	}
	recipeName := flag.Arg(0)
	recipe, ok := recipes[recipeName]
	if !ok {
		log.Fatalf("unknown recipe %q", recipeName)
	}

	if err := run(recipe, flag.Args()[1:], *checkOnly, *doCache, *reportFile, *compareFile); err != nil {
		log.Fatal(err)
	}
}

func run(recipe Recipe, targets []string, checkOnly, doCache bool, reportFile, compareFile string) error {
	reg := builder.NewRegistry()
	for _, s := range recipe.Submodules() {
		if err := reg.Register("build", s); err != nil {
			return err
		}
	}
	if err := reg.Freeze(); err != nil {
		return err
	}

	subs := reg.All()
	if len(targets) > 0 {
		selected := make([]*submodule.Submodule, 0, len(targets))
		for _, t := range targets {
			s, ok := reg.Lookup(t)
			if !ok {
				return fmt.Errorf("unknown target %q", t)
			}
			selected = append(selected, s)
		}
		subs = selected
	}

	if checkOnly {
		results, err := builder.Check(subs)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Println(r.String())
		}
		return nil
	}

	ctx, cancel := ctxutil.Interruptible()
	defer cancel()
	oninterrupt.Register(cancel)

	var fetcher submodule.CacheFetcher
	if config.CacheServer != "" {
		fetcher = &cache.Server{BaseURL: config.CacheServer}
	}

	cfg := builder.Config{
		Log:        log.Default(),
		Jobs:       config.Jobs(runtime.NumCPU()),
		HTTPClient: http.DefaultClient,
		Cache:      fetcher,
	}
	if err := builder.Run(ctx, cfg, subs); err != nil {
		return err
	}

	if doCache {
		for _, s := range reg.All() {
			if !s.Cacheable || !s.IsInstalled() {
				continue
			}
			dest := fmt.Sprintf("build/cache/%s-%s.tar.gz", s.Fullname(), merkle.Short(s.OutHash))
			if err := cache.Pack(s.InstallDir, dest); err != nil {
				return fmt.Errorf("cache %s: %w", s.Fullname(), err)
			}
		}
	}

	if reportFile != "" {
		r, err := builder.BuildReport(subs)
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		if err := builder.SaveReport(r, reportFile); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	if compareFile != "" {
		diffs, err := builder.CompareReport(subs, compareFile)
		if err != nil {
			return fmt.Errorf("compare: %w", err)
		}
		for _, d := range diffs {
			fmt.Println(d)
		}
		if len(diffs) > 0 {
			return fmt.Errorf("%d submodule(s) diverged from %s", len(diffs), compareFile)
		}
	}

	return nil
}
