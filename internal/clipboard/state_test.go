package clipboard

import (
	"testing"

	"github.com/immxrtalbeast/firext/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTextAndListeners(t *testing.T) {
	s := New()
	var seen []string
	s.OnChange(func(snap domain.Snapshot) {
		seen = append(seen, snap.Text)
	})

	assert.True(t, s.SetText("hello"))
	assert.False(t, s.SetText("hello"))
	assert.True(t, s.SetText("world"))

	assert.Equal(t, []string{"hello", "world"}, seen)
	assert.Equal(t, "world", s.Text())
}

func TestStateItemsAreIdempotentByID(t *testing.T) {
	s := New()

	assert.True(t, s.AddImage(domain.Image{ID: "i1", Data: []byte{1}}))
	assert.False(t, s.AddImage(domain.Image{ID: "i1", Data: []byte{2}}))
	assert.True(t, s.AddImage(domain.Image{ID: "i2", Data: []byte{3}}))
	assert.True(t, s.AddFile(domain.File{ID: "f1", Name: "a.txt"}))
	assert.False(t, s.AddFile(domain.File{ID: "f1", Name: "b.txt"}))

	snap := s.Snapshot()
	require.Len(t, snap.Images, 2)
	assert.Equal(t, []byte{1}, snap.Images[0].Data)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "a.txt", snap.Files[0].Name)

	assert.True(t, s.RemoveImage("i1"))
	assert.False(t, s.RemoveImage("i1"))
	assert.True(t, s.RemoveFile("f1"))
	assert.False(t, s.RemoveFile("missing"))

	snap = s.Snapshot()
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "i2", snap.Images[0].ID)
	assert.Empty(t, snap.Files)
}

func TestStateSnapshotIsIsolated(t *testing.T) {
	s := New()
	s.AddImage(domain.Image{ID: "i1"})

	snap := s.Snapshot()
	s.AddImage(domain.Image{ID: "i2"})
	snap.Images[0].ID = "changed"

	assert.Len(t, snap.Images, 1)
	img, ok := s.Image("i1")
	require.True(t, ok)
	assert.Equal(t, "i1", img.ID)
}

func TestStateClearAndReplace(t *testing.T) {
	s := New()
	s.SetText("x")
	s.AddImage(domain.Image{ID: "i1"})
	s.AddFile(domain.File{ID: "f1"})

	s.Clear()
	snap := s.Snapshot()
	assert.Empty(t, snap.Text)
	assert.Empty(t, snap.Images)
	assert.Empty(t, snap.Files)

	s.Replace(domain.Snapshot{
		Text:   "remote",
		Images: []domain.Image{{ID: "r1"}},
		Files:  []domain.File{{ID: "rf"}},
	})
	snap = s.Snapshot()
	assert.Equal(t, "remote", snap.Text)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "r1", snap.Images[0].ID)
	_, ok := s.File("rf")
	assert.True(t, ok)
}
