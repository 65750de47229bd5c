package game

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Theme is one campaign setting the crew can vote for. The id comes from
// the file name; name and intro are shown to players, flavor seasons the
// generation prompts.
type Theme struct {
	ID     string `yaml:"-"`
	Name   string `yaml:"name"`
	Intro  string `yaml:"intro"`
	Flavor string `yaml:"flavor"`
}

// defaultTheme backs the catalog when no theme files are present.
var defaultTheme = Theme{
	ID:    "family-business",
	Name:  "Family Business",
	Intro: "The old neighborhood, the old rules. The Don runs the table and the crew runs the streets.",
	Flavor: "A classic mid-century crime syndicate: protection money, crooked cops, " +
		"rival families, and debts that always come due.",
}

// Catalog loads and serves the theme files from a directory, hot-reloading
// when the directory changes.
type Catalog struct {
	dir    string
	logger *zap.Logger

	mu     sync.RWMutex
	themes []Theme
}

// NewCatalog reads every *.yaml theme under dir. A missing or empty
// directory is not an error; the built-in default theme fills in.
func NewCatalog(dir string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{dir: dir, logger: logger.Named("themes")}
	c.reload()
	return c
}

func (c *Catalog) reload() {
	themes, err := loadThemeDir(c.dir)
	if err != nil {
		c.logger.Warn("theme reload failed; keeping current catalog", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.themes = themes
	c.mu.Unlock()
	c.logger.Debug("theme catalog loaded", zap.Int("themes", len(themes)))
}

func loadThemeDir(dir string) ([]Theme, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read theme dir: %w", err)
	}

	var themes []Theme
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read theme %s: %w", name, err)
		}
		var theme Theme
		if err := yaml.Unmarshal(data, &theme); err != nil {
			return nil, fmt.Errorf("parse theme %s: %w", name, err)
		}
		theme.ID = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		if theme.Name == "" {
			theme.Name = theme.ID
		}
		themes = append(themes, theme)
	}
	return themes, nil
}

// Themes returns the current catalog, falling back to the built-in theme
// when no files loaded.
func (c *Catalog) Themes() []Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.themes) == 0 {
		return []Theme{defaultTheme}
	}
	out := make([]Theme, len(c.themes))
	copy(out, c.themes)
	return out
}

// ByID resolves a theme id, falling back to the default theme so a session
// whose theme file disappeared keeps playing.
func (c *Catalog) ByID(id string) Theme {
	for _, t := range c.Themes() {
		if t.ID == id {
			return t
		}
	}
	return defaultTheme
}

// Watch hot-reloads the catalog whenever the theme directory changes, until
// ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create theme watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		// Directory may not exist; nothing to watch is fine.
		c.logger.Debug("theme dir not watchable", zap.String("dir", c.dir), zap.Error(err))
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("theme watcher error", zap.Error(err))
		}
	}
}
