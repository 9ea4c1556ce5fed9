package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/franksops/gofastq/config"
	"github.com/franksops/gofastq/engine"
	"github.com/franksops/gofastq/store"
)

// fill queues the saved state, the import document and the sources given on
// the command line, in that order.
func fill(m *engine.Manager, st store.Store, opts config.Options) error {
	var errs []error

	if opts.Resume {
		doc, err := loadQueue(st)
		if err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, m.Import(doc))

		failed, err := st.LoadFailed()
		if err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, m.ImportFailed(failed))
	}

	if opts.ImportPath != "" {
		errs = append(errs, importFile(m, opts.ImportPath))
	}

	if len(opts.Sources) > 0 && opts.Dest == "" {
		errs = append(errs, errors.New("-dest is required with -source"))
	} else {
		errs = append(errs, queueSources(m, opts.Sources, opts.Dest))
	}
	return errors.Join(errs...)
}

func loadQueue(st store.Store) (engine.Document, error) {
	var doc engine.Document
	err := st.LoadQueue(&doc)
	if errors.Is(err, store.ErrNoSnapshot) {
		return engine.Document{}, nil
	}
	return doc, err
}

func importFile(m *engine.Manager, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := engine.ReadDocument(f)
	if err != nil {
		return err
	}
	return m.Import(doc)
}

// queueSources queues every source. A trailing slash marks a directory.
// With several sources, or a destination ending in a slash, each source
// lands inside dest under its own name.
func queueSources(m *engine.Manager, sources []string, dest string) error {
	var errs []error
	into := len(sources) > 1 || strings.HasSuffix(dest, "/")

	for _, src := range sources {
		dst := dest
		if into {
			dst = joinLocation(dest, baseName(src))
		}

		var err error
		if strings.HasSuffix(src, "/") {
			_, err = m.QueueDirectory(src, dst, engine.ModeDefault, engine.TransferOptions{})
		} else {
			_, err = m.QueueFile(src, dst, 0, engine.TransferOptions{})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", src, err))
		}
	}
	return errors.Join(errs...)
}

func baseName(loc string) string {
	return path.Base(strings.TrimRight(loc, "/"))
}

func joinLocation(dir, name string) string {
	return strings.TrimRight(dir, "/") + "/" + name
}

// save stores the unfinished queue and the failed registry, and writes the
// queue document when exportPath is set.
func save(m *engine.Manager, st store.Store, exportPath string) error {
	doc := m.Export()
	if err := st.SaveQueue(doc); err != nil {
		return err
	}
	if err := st.SaveFailed(m.FailedRecords()); err != nil {
		return err
	}
	if exportPath == "" {
		return nil
	}

	f, err := os.Create(exportPath)
	if err != nil {
		return err
	}
	if err := engine.WriteDocument(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
