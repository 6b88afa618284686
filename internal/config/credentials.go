package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce is the quiet period after the last file event before reloading.
const DefaultReloadDebounce = 100 * time.Millisecond

// Credentials is a snapshot of the upstream location and token.
type Credentials struct {
	BaseURL string
	Token   string
}

// Complete reports whether both values are set.
func (c Credentials) Complete() bool {
	return c.BaseURL != "" && c.Token != ""
}

// CredentialStore serves the current Baserow credentials to concurrent requests and
// swaps them atomically when the config file changes.
type CredentialStore struct {
	cli    CLI
	path   string
	logger *slog.Logger

	current atomic.Pointer[Credentials]
}

// NewCredentialStore seeds the store from an already loaded config.
func NewCredentialStore(cli *CLI, cfg *Config, logger *slog.Logger) *CredentialStore {
	s := &CredentialStore{
		cli:    *cli,
		path:   cfg.filePath,
		logger: logger.With("component", "credentials"),
	}
	s.set(cfg.Baserow)
	return s
}

// Current returns the credentials in effect.
func (s *CredentialStore) Current() Credentials {
	return *s.current.Load()
}

func (s *CredentialStore) set(b BaserowConfig) {
	s.current.Store(&Credentials{BaseURL: b.APIURL, Token: b.APIToken})
}

// Reload re-reads the config file, re-applies CLI/env overrides and swaps in the
// new credentials. On error the previous credentials stay in effect.
func (s *CredentialStore) Reload() error {
	if s.path == "" {
		return fmt.Errorf("reload credentials: no config file in use")
	}
	cli := s.cli
	cli.Config = s.path
	cfg, err := Load(&cli)
	if err != nil {
		return fmt.Errorf("reload credentials: %w", err)
	}
	s.set(cfg.Baserow)
	s.logger.Info("baserow credentials reloaded", "path", s.path, "complete", s.Current().Complete())
	return nil
}

// Watch reloads credentials whenever the config file is written, created or
// renamed into place. It blocks until ctx is canceled. The parent directory is
// watched rather than the file so that editors' atomic-rename saves are seen.
func (s *CredentialStore) Watch(ctx context.Context, debounce time.Duration) error {
	if s.path == "" {
		return fmt.Errorf("watch credentials: no config file in use")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch credentials: %w", err)
	}
	defer func() { _ = w.Close() }()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch credentials: add %s: %w", filepath.Dir(target), err)
	}
	s.logger.Info("watching config for credential changes", "path", target)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watch credentials: events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug("config file event", "op", event.Op.String())

			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					if ctx.Err() != nil {
						return
					}
					if err := s.Reload(); err != nil {
						s.logger.Error("credential reload failed", "err", err)
					}
				})
			} else {
				timer.Reset(debounce)
			}
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watch credentials: errors channel closed")
			}
			s.logger.Error("config watcher error", "err", err)
		}
	}
}
