package builder

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/osresearch/linux-builder/internal/pathutil"
	"github.com/osresearch/linux-builder/internal/submodule"
	"github.com/osresearch/linux-builder/internal/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
)

// Config holds the scheduler's run-time knobs, read once from the
// environment by the CLI entry point (spec.md §6).
type Config struct {
	Log        *log.Logger
	Jobs       int
	HTTPClient *http.Client
	Cache      submodule.CacheFetcher // nil disables cache lookups
}

// Scheduler runs the installed worker pool over a dependency graph of
// submodules, one goroutine per job slot, draining in-flight work after the
// first failure rather than aborting it outright (spec.md §4.7).
type Scheduler struct {
	cfg        Config
	g          *simple.DirectedGraph
	built      map[*submodule.Submodule]error
	numNodes   int
	statusMu   sync.Mutex
	status     []string
	lastStatus time.Time
}

// Run computes hashes in dependency order, then builds every submodule in
// subs (and anything they transitively depend on) to INSTALLED, respecting
// concurrency cfg.Jobs. Each failure is logged with the tail of its phase
// log, and Run returns an error counting the submodules that failed. After
// the first failure nothing new is started; other in-flight workers are
// allowed to finish their current unit of work before Run returns.
func Run(ctx context.Context, cfg Config, subs []*submodule.Submodule) error {
	if cfg.Log == nil {
		cfg.Log = log.Default()
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}

	ordered, err := ComputeHashes(subs)
	if err != nil {
		return err
	}

	g, _, err := graphOf(ordered)
	if err != nil {
		return err
	}

	sched := &Scheduler{
		cfg:      cfg,
		g:        g,
		built:    make(map[*submodule.Submodule]error, len(ordered)),
		numNodes: len(ordered),
		status:   make([]string, cfg.Jobs+1),
	}
	return sched.run(ctx)
}

var isTerminal = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}()

func (s *Scheduler) refreshStatus() {
	if !isTerminal {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.lastStatus = time.Now()
	for _, line := range s.status {
		fmt.Println(line)
	}
	fmt.Printf("\033[%dA", len(s.status))
}

func (s *Scheduler) updateStatus(idx int, text string) {
	if !isTerminal {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if diff := len(s.status[idx]) - len(text); diff > 0 {
		text += strings.Repeat(" ", diff)
	}
	s.status[idx] = text
	if time.Since(s.lastStatus) < 100*time.Millisecond {
		return
	}
	s.lastStatus = time.Now()
	for _, line := range s.status {
		fmt.Println(line)
	}
	fmt.Printf("\033[%dA", len(s.status))
}

type buildResult struct {
	n   *node
	err error
}

func (s *Scheduler) run(ctx context.Context) error {
	work := make(chan *node, s.numNodes)
	done := make(chan buildResult)
	eg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.cfg.Jobs; i++ {
		i := i
		eg.Go(func() error {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for n := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				s.updateStatus(i+1, "installing "+n.s.Fullname())
				ev := trace.Event("install "+n.s.Fullname(), i+1)
				start := time.Now()
				result := make(chan error, 1)
				go func() { result <- n.s.Install(ctx, s.cfg.HTTPClient, s.cfg.Cache) }()

				var err error
			wait:
				for {
					select {
					case err = <-result:
						break wait
					case <-ticker.C:
						s.updateStatus(i+1, fmt.Sprintf("installing %s since %v", n.s.Fullname(), time.Since(start)))
					}
				}

				ev.Done()
				select {
				case done <- buildResult{n: n, err: err}:
				case <-ctx.Done():
					return ctx.Err()
				}
				s.updateStatus(i+1, "idle")
			}
			return nil
		})
	}

	launched := make(map[*node]bool, s.numNodes)
	for nodes := s.g.Nodes(); nodes.Next(); {
		n := nodes.Node().(*node)
		if s.g.From(n.ID()).Len() == 0 {
			launched[n] = true
			select {
			case work <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	go func() {
		defer close(work)
		succeeded, failed := 0, 0
		for len(s.built) < s.numNodes {
			select {
			case result := <-done:
				s.built[result.n.s] = result.err
				s.updateStatus(0, fmt.Sprintf("%d of %d submodules: %d installed, %d failed",
					len(s.built), s.numNodes, succeeded, failed))

				if result.err == nil {
					succeeded++
					for to := s.g.To(result.n.ID()); to.Next(); {
						candidate := to.Node().(*node)
						if _, finished := s.built[candidate.s]; !finished && !launched[candidate] && s.canBuild(candidate) {
							launched[candidate] = true
							work <- candidate
						}
					}
				} else {
					tail, _ := pathutil.TailLines(result.n.s.LastLog(), 20)
					s.cfg.Log.Printf("install of %s failed: %v\n%s", result.n.s.Fullname(), result.err, strings.Join(tail, "\n"))
					s.refreshStatus()
					failed += 1 + s.markFailed(result.n)
					// Nothing new starts after a failure: every submodule not
					// yet launched is recorded as failed.
					for nodes := s.g.Nodes(); nodes.Next(); {
						n := nodes.Node().(*node)
						if _, finished := s.built[n.s]; !finished && !launched[n] {
							s.built[n.s] = xerrors.Errorf("%s: not started after an earlier failure", n.s.Fullname())
							failed++
						}
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := eg.Wait(); err != nil {
		return err
	}

	failedCount := 0
	for _, err := range s.built {
		if err != nil {
			failedCount++
		}
	}
	s.cfg.Log.Printf("%d of %d submodules failed", failedCount, len(s.built))
	if failedCount > 0 {
		return xerrors.Errorf("%d submodule(s) failed to install", failedCount)
	}
	return nil
}

// canBuild reports whether every dependency of candidate has already
// finished (successfully).
func (s *Scheduler) canBuild(candidate *node) bool {
	for from := s.g.From(candidate.ID()); from.Next(); {
		dep := from.Node().(*node)
		if err, ok := s.built[dep.s]; !ok || err != nil {
			return false
		}
	}
	return true
}

// markFailed recursively marks everything depending (directly or
// transitively) on n as failed, so the scheduler doesn't wait forever for
// work that can never become ready.
func (s *Scheduler) markFailed(n *node) int {
	failed := 0
	for to := s.g.To(n.ID()); to.Next(); {
		d := to.Node().(*node)
		if err, ok := s.built[d.s]; ok && err == nil {
			s.cfg.Log.Fatalf("BUG: %s already succeeded but depends on failed %s", d.s.Fullname(), n.s.Fullname())
		}
		if _, ok := s.built[d.s]; !ok {
			s.built[d.s] = xerrors.Errorf("%s: dependency %s failed", d.s.Fullname(), n.s.Fullname())
			failed++
		}
		failed += s.markFailed(d)
	}
	return failed
}
