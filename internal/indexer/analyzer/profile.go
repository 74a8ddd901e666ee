package analyzer

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

// Profile supplies the language-specific steps of the pipeline. Words reach
// a profile already lower-cased and accent-folded, so stop lists must be
// folded the same way.
type Profile interface {
	Name() string
	IsStopWord(word string) bool
	Stem(word string) string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Profile{}
)

// Register makes a profile available to Lookup, replacing any profile with
// the same name.
func Register(p Profile) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

func Lookup(name string) (Profile, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProfile, name)
	}
	return p, nil
}

// Profiles lists registered profile names in sorted order.
func Profiles() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Simple{})
	Register(NewItalian())
	Register(NewEnglish())
}

// Simple performs no stop-word removal and no stemming.
type Simple struct{}

func (Simple) Name() string            { return "simple" }
func (Simple) IsStopWord(string) bool  { return false }
func (Simple) Stem(word string) string { return word }

// stopSet folds every entry so lists can be written with their accents.
func stopSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[fold(w)] = struct{}{}
	}
	return set
}
