package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Document is the portable form of the queue.
type Document struct {
	Items []DocumentItem `json:"items"`
}

// DocumentItem is one transfer. Directories carry their known children; a
// directory without children is scanned again when it runs.
type DocumentItem struct {
	Source   string         `json:"source"`
	Dest     string         `json:"dest"`
	Size     int64          `json:"size,omitempty"`
	Type     string         `json:"type"`
	Children []DocumentItem `json:"children,omitempty"`
}

const (
	docFile      = "file"
	docDirectory = "directory"
)

// ReadDocument decodes a JSON queue document.
func ReadDocument(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode queue document: %w", err)
	}
	return doc, nil
}

// WriteDocument encodes doc as indented JSON.
func WriteDocument(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Export describes every unfinished item of the queue.
func (m *Manager) Export() Document {
	doc := Document{Items: []DocumentItem{}}
	for _, e := range m.Endpoints() {
		for _, c := range e.children {
			if item, ok := exportItem(c.(runnable)); ok {
				doc.Items = append(doc.Items, item)
			}
		}
	}
	return doc
}

func exportItem(r runnable) (DocumentItem, bool) {
	if r.finished() {
		return DocumentItem{}, false
	}
	t := r.transfer()
	item := DocumentItem{
		Source: documentLocation(t.src),
		Dest:   documentLocation(t.dst),
		Size:   t.Size(),
		Type:   docFile,
	}
	if d, ok := r.(*Directory); ok {
		item.Type = docDirectory
		item.Size = 0
		for _, c := range d.children {
			if child, ok := exportItem(c.(runnable)); ok {
				item.Children = append(item.Children, child)
			}
		}
	}
	return item, true
}

// Import queues every item of doc. Items that cannot be queued are skipped
// and reported together.
func (m *Manager) Import(doc Document) error {
	var errs []error
	for _, item := range doc.Items {
		if err := m.importItem(nil, item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) importItem(parent *Directory, item DocumentItem) error {
	src, dst, dir, err := m.locations(item.Source, item.Dest)
	if err != nil {
		return err
	}

	var r runnable
	switch item.Type {
	case docFile, "":
		r = m.newTransfer(src, dst, dir, item.Size, TransferOptions{})
	case docDirectory:
		d := m.newDirectory(src, dst, dir, TransferOptions{})
		d.scanned = len(item.Children) > 0
		r = d
	default:
		return fmt.Errorf("%s: unknown item type %q", item.Source, item.Type)
	}

	if parent == nil {
		m.attach(&m.endpointFor(r.transfer()).Node, r)
	} else {
		m.attach(&parent.Node, r)
	}

	d, ok := r.(*Directory)
	if !ok {
		return nil
	}
	var errs []error
	for _, child := range item.Children {
		if err := m.importItem(d, child); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
