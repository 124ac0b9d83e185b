// Package playback keeps a looping clip's speed locked to the metronome tempo.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrInvalidItem = errors.New("playback: invalid media item")

// Item is a clip and the tempo it was recorded at.
type Item struct {
	Name string
	URL  string
	BPM  float64
}

func (it Item) Validate() error {
	if it.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidItem)
	}
	if !(it.BPM > 0) || math.IsInf(it.BPM, 0) {
		return fmt.Errorf("%w: %s: bpm must be > 0", ErrInvalidItem, it.Name)
	}
	return nil
}

// Library is the ordered clip list with a cursor on the current clip.
type Library struct {
	mu    sync.RWMutex
	items []Item
	cur   int
}

func NewLibrary(items []Item) (*Library, error) {
	l := &Library{}
	if err := l.Replace(items); err != nil {
		return nil, err
	}
	return l, nil
}

// ValidateItems checks every item and rejects duplicate names.
func ValidateItems(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		if _, dup := seen[it.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidItem, it.Name)
		}
		seen[it.Name] = struct{}{}
	}
	return nil
}

// Replace swaps the clip list. The cursor follows the current clip by name and
// falls back to the first clip when it is gone.
func (l *Library) Replace(items []Item) error {
	if err := ValidateItems(items); err != nil {
		return err
	}
	next := append([]Item(nil), items...)

	l.mu.Lock()
	defer l.mu.Unlock()
	cur := 0
	if l.cur < len(l.items) {
		name := l.items[l.cur].Name
		for i, it := range next {
			if it.Name == name {
				cur = i
				break
			}
		}
	}
	l.items = next
	l.cur = cur
	return nil
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *Library) Current() (Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return Item{}, false
	}
	return l.items[l.cur], true
}

// Next advances to the following clip, wrapping around.
func (l *Library) Next() (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return Item{}, false
	}
	l.cur = (l.cur + 1) % len(l.items)
	return l.items[l.cur], true
}

func (l *Library) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Item(nil), l.items...)
}
