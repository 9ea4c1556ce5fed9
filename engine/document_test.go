package engine_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gofastq/engine"
)

func TestDocument_ReadWrite(t *testing.T) {
	doc := engine.Document{Items: []engine.DocumentItem{
		{Source: "ftp://host/a", Dest: "/tmp/a", Size: 3, Type: "file"},
		{Source: "ftp://host/d", Dest: "/tmp/d", Type: "directory", Children: []engine.DocumentItem{
			{Source: "ftp://host/d/x", Dest: "/tmp/d/x", Size: 1, Type: "file"},
		}},
	}}

	var buf bytes.Buffer
	require.NoError(t, engine.WriteDocument(&buf, doc))
	assert.Contains(t, buf.String(), `"type": "directory"`)

	got, err := engine.ReadDocument(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestDocument_ReadInvalid(t *testing.T) {
	_, err := engine.ReadDocument(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestManager_ImportSkipsBadItems(t *testing.T) {
	h := newHarness(t, nil)
	h.remote.AddFile("/ok", payload(4))

	err := h.m.Import(engine.Document{Items: []engine.DocumentItem{
		{Source: "/local/a", Dest: "/local/b", Type: "file"},
		{Source: "mem://site/x", Dest: "/dl/x", Type: "symlink"},
		{Source: "mem://site/ok", Dest: "/dl/ok", Size: 4},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrLocalOnly)
	assert.Contains(t, err.Error(), "symlink")

	e := h.endpoint()
	require.Equal(t, 1, e.ChildCount())
	assert.Equal(t, int64(4), e.Size())

	h.m.StartAll()
	h.run(func() bool { return len(h.rec.finished) == 1 })
	got, ok := h.local.File("/dl/ok")
	require.True(t, ok)
	assert.Len(t, got, 4)
}

func TestManager_ExportSkipsFinished(t *testing.T) {
	h := newHarness(t, nil)
	h.remote.AddFile("/one", payload(2))
	tr := h.queueFile("mem://site/one", "/dl/one", 2)
	h.queueFile("mem://site/two", "/dl/two", 5)

	require.NoError(t, h.m.Start(tr))
	h.run(tr.Finished)

	doc := h.m.Export()
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "mem://site/two", doc.Items[0].Source)
	assert.Equal(t, int64(5), doc.Items[0].Size)
}
