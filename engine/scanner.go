package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync/atomic"

	"github.com/franksops/gofastq/filter"
	"github.com/franksops/gofastq/provider"
)

// ErrScanAborted is returned by Walk once its ScanOp was aborted.
var ErrScanAborted = errors.New("scan aborted")

// ScanEntry is one node of a provisional scan tree. Children are ordered:
// directories first, each kind by descending filter priority.
type ScanEntry struct {
	Name     string
	Dir      bool
	Size     int64
	Priority int
	Children []*ScanEntry
}

// hasFiles reports whether any file survives below e.
func (e *ScanEntry) hasFiles() bool {
	stack := []*ScanEntry{e}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range curr.Children {
			if !c.Dir {
				return true
			}
			stack = append(stack, c)
		}
	}
	return false
}

// ScanOp is the handle of one running scan. Aborting it is safe from any
// goroutine; the walk notices between listings and between entries.
type ScanOp struct {
	aborted atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func newScanOp(parent context.Context) *ScanOp {
	ctx, cancel := context.WithCancel(parent)
	return &ScanOp{ctx: ctx, cancel: cancel}
}

// Abort stops the walk. It is idempotent.
func (op *ScanOp) Abort() {
	op.aborted.Store(true)
	op.cancel()
}

// Aborted reports whether Abort was called.
func (op *ScanOp) Aborted() bool {
	return op.aborted.Load()
}

// Scanner lists a source directory tree through a provider, applying the
// filter chain.
type Scanner struct {
	filter *filter.Chain
	logger *slog.Logger
}

// NewScanner creates a scanner. A nil chain keeps every entry.
func NewScanner(chain *filter.Chain, logger *slog.Logger) *Scanner {
	return &Scanner{filter: chain, logger: logger}
}

// Walk lists root and everything below it iteratively (stack-based) and
// returns the children of root.
func (s *Scanner) Walk(ctx context.Context, op *ScanOp, src provider.Provider, root string) ([]*ScanEntry, error) {
	type walkItem struct {
		dir   string
		entry *ScanEntry
	}

	top := &ScanEntry{Dir: true}
	stack := []walkItem{{dir: root, entry: top}}
	listed := 0

	for len(stack) > 0 {
		if op.Aborted() {
			return nil, ErrScanAborted
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		infos, err := src.List(ctx, curr.dir)
		if err != nil {
			if op.Aborted() {
				return nil, ErrScanAborted
			}
			return nil, fmt.Errorf("failed to list directory %s: %w", curr.dir, err)
		}
		listed++

		var dirs, files []*ScanEntry
		for _, info := range infos {
			if op.Aborted() {
				return nil, ErrScanAborted
			}
			name := info.Name()
			if name == "" || name == "." || name == ".." {
				continue
			}

			decision := s.filter.Classify(path.Join(curr.dir, name), info.Size(), info.IsDir())
			if decision.Action == filter.Skip {
				continue
			}

			e := &ScanEntry{Name: name, Dir: info.IsDir(), Priority: decision.Priority}
			if e.Dir {
				dirs = append(dirs, e)
			} else {
				e.Size = info.Size()
				files = append(files, e)
			}
		}

		byPriority(dirs)
		byPriority(files)
		curr.entry.Children = append(dirs, files...)

		// Push subdirectories so the first one is listed next
		for i := len(dirs) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{dir: path.Join(curr.dir, dirs[i].Name), entry: dirs[i]})
		}
	}

	s.logger.Debug("walk finished", "root", root, "directories", listed)
	return top.Children, nil
}

func byPriority(entries []*ScanEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})
}
