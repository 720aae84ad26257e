// Package alias implements the Alias Store (C1): a hot-reloadable mapping
// from a short client-facing name to a concrete provider:model spec.
package alias

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape: {aliases: {name: {provider, model} | "provider:model"}}.
type document struct {
	Aliases map[string]rawEntry `yaml:"aliases"`
}

// rawEntry supports both the map form {provider, model} and the bare
// "provider:model" string form.
type rawEntry struct {
	Provider string
	Model    string
	spec     string
}

func (e *rawEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.spec = value.Value
		return nil
	}
	type inner struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	}
	var i inner
	if err := value.Decode(&i); err != nil {
		return err
	}
	e.Provider, e.Model = i.Provider, i.Model
	return nil
}

func (e rawEntry) Spec() string {
	if e.spec != "" {
		return e.spec
	}
	return e.Provider + ":" + e.Model
}

// defaultAliases is loaded when the configured aliases file is missing and
// no prior snapshot exists, per spec §4.1.
var defaultAliases = map[string]string{
	"fast":  "openai:gpt-3.5-turbo",
	"smart": "openai:gpt-4",
}

// Store is a concurrent read-optimized alias mapping. Readers call
// Resolve/List against an atomically-swapped snapshot; the only writer is
// Reload (called directly, or by the file watcher).
type Store struct {
	path     string
	logger   *logrus.Logger
	snapshot atomic.Pointer[map[string]string]

	watcher      *fsnotify.Watcher
	stopWatch    chan struct{}
	debounce     time.Duration
}

func NewStore(path string, debounce time.Duration, logger *logrus.Logger) *Store {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	s := &Store{
		path:      path,
		logger:    logger,
		stopWatch: make(chan struct{}),
		debounce:  debounce,
	}
	initial := cloneMap(defaultAliases)
	s.snapshot.Store(&initial)
	return s
}

// ErrNotFound is returned by Resolve when the alias has no entry.
var ErrNotFound = fmt.Errorf("alias not found")

// Resolve implements resolve(name) → model_spec | not_found.
func (s *Store) Resolve(name string) (string, error) {
	m := *s.snapshot.Load()
	spec, ok := m[name]
	if !ok {
		return "", ErrNotFound
	}
	return spec, nil
}

// List implements list() → {name:spec}, returning a copy so callers can't
// mutate the live snapshot.
func (s *Store) List() map[string]string {
	return cloneMap(*s.snapshot.Load())
}

// Reload implements reload(): parse the document, and only on success
// atomically swap the snapshot. On parse failure the current contents are
// kept and the failure is logged.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Alias reload: read failed, keeping current mapping")
		return err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Alias reload: parse failed, keeping current mapping")
		return err
	}

	candidate := make(map[string]string, len(doc.Aliases))
	for name, entry := range doc.Aliases {
		candidate[name] = entry.Spec()
	}

	s.snapshot.Store(&candidate)
	s.logger.WithField("count", len(candidate)).Info("Alias mapping reloaded")
	return nil
}

// Watch starts an fsnotify watcher on the aliases file's directory,
// debouncing bursts of write events (editors commonly emit several) before
// calling Reload.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("alias watcher: %w", err)
	}
	s.watcher = w

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("alias watcher: watch %s: %w", dir, err)
	}

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	var timer *time.Timer
	reload := func() {
		if err := s.Reload(); err != nil {
			s.logger.WithError(err).Warn("Alias watcher reload failed")
		}
	}

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, reload)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("Alias watcher error")

		case <-s.stopWatch:
			return
		}
	}
}

func (s *Store) Stop() {
	if s.watcher != nil {
		close(s.stopWatch)
		s.watcher.Close()
	}
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ParseSpec splits a "provider:model" spec into its two parts.
func ParseSpec(spec string) (provider, model string, ok bool) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
