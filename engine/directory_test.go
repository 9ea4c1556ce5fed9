package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gofastq/config"
	"github.com/franksops/gofastq/engine"
)

func seedTree(h *harness) {
	h.remote.AddFile("/src/b.txt", payload(20))
	h.remote.AddFile("/src/a.txt", payload(10))
	h.remote.AddFile("/src/sub/x.txt", payload(5))
	h.remote.AddDir("/src/empty")
	h.remote.AddDir("/src/hollow/inner")
}

func names(items []engine.Item) []string {
	var out []string
	for _, it := range items {
		switch v := it.(type) {
		case *engine.Directory:
			out = append(out, v.Source().Path)
		case *engine.Transfer:
			out = append(out, v.Source().Path)
		}
	}
	return out
}

func TestDirectory_ScanThenRun(t *testing.T) {
	h := newHarness(t, nil)
	seedTree(h)

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	assert.False(t, d.Scanned())
	assert.Equal(t, 0, d.ChildCount())

	e := h.endpoint()
	require.NoError(t, h.m.Start(e))
	assert.True(t, d.Scanning(), "a directory without children lists its source first")

	h.run(d.Scanned)
	assert.True(t, h.rec.locked[d.ID()], "a scanning directory is locked")
	assert.Equal(t, []string{"/src/empty", "/src/hollow", "/src/sub", "/src/a.txt", "/src/b.txt"}, names(d.Children()))
	assert.Equal(t, int64(35), d.Size())
	assert.Equal(t, int64(35), e.Size())

	h.run(d.Finished)
	for p, n := range map[string]int{"/dl/src/a.txt": 10, "/dl/src/b.txt": 20, "/dl/src/sub/x.txt": 5} {
		got, ok := h.local.File(p)
		require.True(t, ok, p)
		assert.Len(t, got, n)
	}
	assert.True(t, h.local.HasDir("/dl/src/empty"), "empty directories are created")
	assert.True(t, h.local.HasDir("/dl/src/hollow/inner"))
	assert.Equal(t, int64(35), h.m.Totals().Completed)
	assert.Equal(t, 3, len(h.rec.finished))

	h.run(func() bool { return !e.Running() })
	assert.True(t, h.m.Idle())
}

func TestDirectory_SkipEmptyDirs(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Queue.SkipEmptyDirs = true })
	seedTree(h)

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	h.m.StartAll()
	h.run(d.Finished)

	assert.Equal(t, []string{"/src/sub", "/src/a.txt", "/src/b.txt"}, names(d.Children()))
	assert.False(t, h.local.HasDir("/dl/src/empty"))
	assert.False(t, h.local.HasDir("/dl/src/hollow"))
}

func TestDirectory_ScanOnly(t *testing.T) {
	h := newHarness(t, nil)
	seedTree(h)

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeScanOnly, engine.TransferOptions{})
	require.NoError(t, err)
	h.run(d.Scanned)

	assert.Equal(t, 5, d.ChildCount())
	assert.Equal(t, engine.StatusStopped, d.Status())
	assert.False(t, d.Finished())
	assert.Empty(t, h.rec.finished, "scan only does not transfer")
	assert.Equal(t, engine.ModeDefault, d.Mode())

	h.m.StartAll()
	h.run(d.Finished)
	assert.Len(t, h.rec.finished, 3)
}

func TestDirectory_Ignore(t *testing.T) {
	h := newHarness(t, nil)
	seedTree(h)
	h.remote.AddFile("/one", payload(1))

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeIgnore, engine.TransferOptions{})
	require.NoError(t, err)
	tr := h.queueFile("mem://site/one", "/dl/one", 1)

	h.m.StartAll()
	h.run(tr.Finished)
	assert.True(t, d.Finished())
	assert.Equal(t, 0, d.ChildCount())
	assert.Equal(t, 1, h.remote.Opened(), "only the file was read")
}

func TestDirectory_FiltersAndPriority(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Filters = []config.FilterRule{
			{Pattern: "*.tmp", Action: "skip"},
			{Pattern: "b.txt", Action: "keep", Priority: 5},
			{Pattern: "sub", Action: "skip", DirsOnly: true},
		}
	})
	seedTree(h)
	h.remote.AddFile("/src/junk.tmp", payload(3))

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeScanOnly, engine.TransferOptions{})
	require.NoError(t, err)
	h.run(d.Scanned)

	assert.Equal(t, []string{"/src/empty", "/src/hollow", "/src/b.txt", "/src/a.txt"}, names(d.Children()))
}

func TestDirectory_ScanFailure(t *testing.T) {
	h := newHarness(t, nil)

	d, err := h.m.QueueDirectory("mem://site/missing", "/dl/missing", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	h.m.StartAll()
	h.run(func() bool { return len(h.m.Failed()) == 1 })

	assert.Same(t, d, h.m.Failed()[0].Item())
	assert.False(t, d.Scanning())
	assert.Empty(t, h.m.Endpoints())
	assert.Equal(t, 0, h.pool().InUse())
}

func TestDirectory_AbortDuringScan(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Queue.ConnectionsPerSite = 1 })
	seedTree(h)

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	h.m.StartAll()
	require.True(t, d.Scanning())

	require.NoError(t, h.m.Stop(d))
	assert.False(t, d.Scanning())
	assert.Equal(t, engine.StatusStopped, d.Status())

	// late scan results are dropped; the next run lists again
	h.run(func() bool { return h.pool().InUse() == 0 && h.m.Idle() })
	assert.Equal(t, 0, d.ChildCount())

	h.m.StartAll()
	h.run(d.Finished)
	assert.Equal(t, 5, d.ChildCount())
}

func TestDirectory_ExportImport(t *testing.T) {
	h := newHarness(t, nil)
	seedTree(h)
	h.queueFile("mem://site/src/a.txt", "/dl/a.txt", 10)
	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeScanOnly, engine.TransferOptions{})
	require.NoError(t, err)
	h.run(d.Scanned)

	doc := h.m.Export()
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "file", doc.Items[0].Type)
	assert.Equal(t, "directory", doc.Items[1].Type)
	assert.Len(t, doc.Items[1].Children, 5)

	other := newHarness(t, nil)
	seedTree(other)
	require.NoError(t, other.m.Import(doc))

	eps := other.m.Endpoints()
	require.Len(t, eps, 1)
	children := eps[0].Children()
	require.Len(t, children, 2)
	imported, ok := children[1].(*engine.Directory)
	require.True(t, ok)
	assert.True(t, imported.Scanned())
	assert.Equal(t, names(d.Children()), names(imported.Children()))
	assert.Equal(t, h.m.Totals().Size, other.m.Totals().Size)

	other.m.StartAll()
	other.run(imported.Finished)
	_, ok = other.local.File("/dl/src/sub/x.txt")
	assert.True(t, ok)
}

func TestDirectory_HeldFileStartsAfterScan(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Queue.ConnectionsPerSite = 1 })
	h.remote.AddFile("/f1", payload(4))
	h.remote.AddFile("/d/a.txt", payload(8))
	h.remote.AddFile("/f2", payload(4))

	release := make(chan struct{})
	h.remote.SetReadFailure(func(p string) error {
		if p == "/d/a.txt" {
			<-release
		}
		return nil
	})

	first := h.queueFile("mem://site/f1", "/dl/f1", 4)
	d, err := h.m.QueueDirectory("mem://site/d", "/dl/d", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	second := h.queueFile("mem://site/f2", "/dl/f2", 4)

	h.m.StartAll()
	h.run(first.Finished)

	// the listing holds the only connection, then a.txt takes it over; f2
	// must queue for it instead of waiting for the whole directory
	h.run(func() bool { return second.Status() == engine.StatusWaiting })
	assert.True(t, d.Scanned())
	assert.False(t, d.Finished())

	close(release)
	h.run(h.m.Idle)
	assert.True(t, d.Finished())
	assert.True(t, second.Finished())
	got, ok := h.local.File("/dl/f2")
	require.True(t, ok)
	assert.Len(t, got, 4)
}

func TestDirectory_AbortKeepsFinishedChildren(t *testing.T) {
	h := newHarness(t, nil)
	h.remote.AddFile("/src/a.txt", payload(10))
	h.remote.AddFile("/src/b.txt", payload(20))

	release := make(chan struct{})
	defer close(release)
	h.remote.SetReadFailure(func(p string) error {
		if p == "/src/b.txt" {
			<-release
		}
		return nil
	})

	d, err := h.m.QueueDirectory("mem://site/src", "/dl/src", engine.ModeDefault, engine.TransferOptions{})
	require.NoError(t, err)
	h.m.StartAll()
	h.run(d.Scanned)
	require.Equal(t, []string{"/src/a.txt", "/src/b.txt"}, names(d.Children()))

	a := d.Child(0).(*engine.Transfer)
	b := d.Child(1).(*engine.Transfer)
	h.run(a.Finished)

	require.NoError(t, h.m.Stop(d))
	assert.Equal(t, engine.StatusStopped, d.Status())
	assert.Equal(t, engine.StatusStopped, b.Status())
	assert.False(t, b.Finished())

	// the aborted child drops its progress, the finished one keeps it
	assert.Equal(t, int64(30), d.Size())
	assert.Equal(t, int64(10), d.Completed())
	assert.Equal(t, int64(0), d.Speed())
	assert.Equal(t, d.Completed(), h.endpoint().Completed())
}
