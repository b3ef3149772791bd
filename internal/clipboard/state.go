package clipboard

import (
	"sync"

	"github.com/immxrtalbeast/firext/internal/domain"
)

// Listener observes the clipboard after every effective change.
type Listener func(domain.Snapshot)

// State is the local clipboard. Item byte slices are treated as immutable
// once stored.
type State struct {
	mu        sync.RWMutex
	text      string
	images    []domain.Image
	files     []domain.File
	listeners []Listener
}

func New() *State {
	return &State{}
}

func (s *State) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *State) SetText(text string) bool {
	return s.mutate(func() bool {
		if s.text == text {
			return false
		}
		s.text = text
		return true
	})
}

// AddImage appends img unless an image with the same id is present.
func (s *State) AddImage(img domain.Image) bool {
	return s.mutate(func() bool {
		for _, existing := range s.images {
			if existing.ID == img.ID {
				return false
			}
		}
		s.images = append(s.images, img)
		return true
	})
}

func (s *State) RemoveImage(id string) bool {
	return s.mutate(func() bool {
		for i, existing := range s.images {
			if existing.ID == id {
				s.images = append(s.images[:i:i], s.images[i+1:]...)
				return true
			}
		}
		return false
	})
}

// AddFile appends f unless a file with the same id is present.
func (s *State) AddFile(f domain.File) bool {
	return s.mutate(func() bool {
		for _, existing := range s.files {
			if existing.ID == f.ID {
				return false
			}
		}
		s.files = append(s.files, f)
		return true
	})
}

func (s *State) RemoveFile(id string) bool {
	return s.mutate(func() bool {
		for i, existing := range s.files {
			if existing.ID == id {
				s.files = append(s.files[:i:i], s.files[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *State) Clear() {
	s.mutate(func() bool {
		s.text = ""
		s.images = nil
		s.files = nil
		return true
	})
}

// Replace swaps the whole clipboard for snap.
func (s *State) Replace(snap domain.Snapshot) {
	s.mutate(func() bool {
		s.text = snap.Text
		s.images = append([]domain.Image(nil), snap.Images...)
		s.files = append([]domain.File(nil), snap.Files...)
		return true
	})
}

func (s *State) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

func (s *State) Image(id string) (domain.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, img := range s.images {
		if img.ID == id {
			return img, true
		}
	}
	return domain.Image{}, false
}

func (s *State) File(id string) (domain.File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.ID == id {
			return f, true
		}
	}
	return domain.File{}, false
}

func (s *State) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		Text:   s.text,
		Images: append([]domain.Image{}, s.images...),
		Files:  append([]domain.File{}, s.files...),
	}
}

func (s *State) mutate(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	var (
		snap      domain.Snapshot
		listeners []Listener
	)
	if changed {
		snap = s.snapshotLocked()
		listeners = append(listeners, s.listeners...)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return changed
}
