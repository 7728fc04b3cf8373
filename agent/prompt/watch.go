package prompt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Source hands out the prompt set to use for the next call.
type Source interface {
	Current() PromptSet
}

type staticSource struct {
	set PromptSet
}

func (s staticSource) Current() PromptSet {
	return s.set
}

func Static(set PromptSet) Source {
	return staticSource{set: set}
}

type Config struct {
	File  string `envconfig:"FILE" split_words:"true"`
	Watch bool   `envconfig:"WATCH" split_words:"true" default:"false"`
}

// Store serves the embedded prompts, optionally overlaid by a file that can be
// reloaded while the process runs.
type Store struct {
	path    string
	base    PromptSet
	current atomic.Pointer[PromptSet]
}

var _ Source = (*Store)(nil)

func NewStore(cfg Config) (*Store, error) {
	s := &Store{
		path: strings.TrimSpace(cfg.File),
		base: LoadPromptSet(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Current() PromptSet {
	return *s.current.Load()
}

func (s *Store) Reload() error {
	set := s.base
	if s.path != "" {
		loaded, err := LoadFile(s.path, s.base)
		if err != nil {
			return err
		}
		set = loaded
	}
	s.current.Store(&set)
	return nil
}

// Watch reloads the override file whenever it changes, until ctx is done.
// A reload that fails keeps the previous prompt set.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("prompt: no override file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompt: create watcher: %w", err)
	}
	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("prompt: watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					log.Warn().Err(err).Str("file", s.path).Msg("prompt reload failed, keeping previous prompts")
					continue
				}
				log.Info().Str("file", s.path).Msg("prompts reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("prompt watcher error")
			}
		}
	}()
	return nil
}
