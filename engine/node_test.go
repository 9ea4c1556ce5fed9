package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile(size int64) *Transfer {
	t := &Transfer{}
	t.init(t, KindFile, nil)
	t.stats.Size = size
	return t
}

func testDir() *Directory {
	d := &Directory{}
	d.init(d, KindDirectory, nil)
	d.group = newGroup(&d.Node, func() {})
	return d
}

func TestNode_Aggregation(t *testing.T) {
	top := testDir()
	sub := testDir()
	a, b, c := testFile(10), testFile(20), testFile(5)

	sub.addChild(a)
	sub.addChild(b)
	top.addChild(sub)
	top.addChild(c)

	assert.Equal(t, int64(30), sub.Size())
	assert.Equal(t, int64(35), top.Size())
	assert.Same(t, sub, a.Parent())
	assert.Equal(t, 1, c.Index())

	a.AddCompleted(4)
	b.AddResumed(2)
	assert.Equal(t, int64(4), top.Completed())
	assert.Equal(t, int64(2), top.Stats().Resumed)
	assert.InDelta(t, 40.0, a.Progress(), 0.001)

	a.SetSpeed(100)
	b.SetSpeed(50)
	sub.SetSpeed(7)
	assert.Equal(t, int64(157), sub.Speed())
	assert.Equal(t, int64(157), top.Speed())

	a.SetSpeed(0)
	assert.Equal(t, int64(57), top.Speed())

	removed := top.removeChildAt(0)
	assert.Same(t, sub, removed)
	assert.Nil(t, sub.Parent())
	assert.Equal(t, -1, sub.Index())
	assert.Equal(t, Stats{Size: 5}, top.Stats())
	assert.Equal(t, 0, c.Index())
}

func TestNode_ResetProgress(t *testing.T) {
	top := testDir()
	f := testFile(100)
	top.addChild(f)

	f.AddCompleted(60)
	f.AddResumed(10)
	f.SetSpeed(1000)
	f.resetProgress()

	assert.Equal(t, Stats{Size: 100}, top.Stats())
	assert.Equal(t, Stats{Size: 100}, f.Stats())
}

func TestNode_ProgressUnknownSize(t *testing.T) {
	f := testFile(0)
	f.AddCompleted(10)
	assert.Zero(t, f.Progress())
}

func TestNode_MoveGuards(t *testing.T) {
	d := testDir()
	files := make([]*Transfer, 4)
	for i := range files {
		files[i] = testFile(1)
		d.addChild(files[i])
	}

	assert.False(t, files[0].CanMoveUp())
	assert.False(t, files[3].CanMoveDown())
	assert.True(t, files[1].CanMoveUp())
	assert.True(t, files[3].CanMoveTop())

	// started children stay where the scheduler put them
	d.group.running = true
	d.group.cursor = 2
	assert.False(t, files[1].CanMoveDown())
	assert.False(t, files[2].CanMoveUp())
	assert.False(t, files[3].CanMoveTop())
	assert.True(t, files[2].CanMoveDown())
	assert.True(t, files[3].CanMoveUp())

	files[3].status = StatusRunning
	assert.False(t, files[2].CanMoveDown(), "busy children are pinned")
	assert.False(t, files[2].CanMoveBottom())

	d.group.running = false
	files[3].status = StatusStopped
	d.moveChild(3, 0)
	require.Equal(t, 4, d.ChildCount())
	assert.Same(t, files[3], d.Child(0))
	assert.Same(t, files[0], d.Child(1))
	assert.Same(t, files[2], d.Child(3))
}

func TestNode_RemoveAdjustsCursor(t *testing.T) {
	d := testDir()
	for i := 0; i < 3; i++ {
		d.addChild(testFile(1))
	}
	d.group.running = true
	d.group.cursor = 2

	d.removeChildAt(0)
	assert.Equal(t, 1, d.group.Cursor())

	d.removeChildAt(1)
	assert.Equal(t, 1, d.group.Cursor())
}

func TestNode_Walk(t *testing.T) {
	top := testDir()
	sub := testDir()
	a, b := testFile(1), testFile(2)
	sub.addChild(a)
	top.addChild(sub)
	top.addChild(b)

	var seen []Item
	top.walk(func(item Item) { seen = append(seen, item) })
	assert.Equal(t, []Item{top, sub, a, b}, seen)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "locked", StatusLocked.String())
	assert.Equal(t, "unknown", Status(99).String())
	assert.Equal(t, "directory", KindDirectory.String())
	assert.Equal(t, "scan-only", ModeScanOnly.String())
	assert.Equal(t, "upload", Upload.String())
}
