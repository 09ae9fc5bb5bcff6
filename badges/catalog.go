// Package badges holds the administrator-managed badge catalog. Definitions
// live in a YAML file that is validated against a JSON schema, can be edited
// through the admin API and are reloaded when the file changes on disk.
package badges

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"skillup/core"
)

// AwardCounter reports how many learners hold a badge.
type AwardCounter interface {
	CountAwards(ctx context.Context, badge core.BadgeID) (int64, error)
}

// Catalog implements engine.BadgeCatalog.
type Catalog struct {
	mu     sync.RWMutex
	path   string
	defs   map[core.BadgeID]core.BadgeDefinition
	awards AwardCounter
	log    *slog.Logger
}

type catalogFile struct {
	Badges []fileBadge `yaml:"badges"`
}

type fileBadge struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	IconURL     string         `yaml:"icon_url,omitempty"`
	Condition   core.Condition `yaml:"condition"`
}

// New loads the catalog from path. An empty path keeps the catalog in memory
// only; a missing file starts an empty catalog that is created on first write.
func New(path string, awards AwardCounter) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		defs:   map[core.BadgeID]core.BadgeDefinition{},
		awards: awards,
		log:    slog.Default().With("component", "badge_catalog"),
	}
	if path == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return c, nil
}

// NewInMemory returns a catalog seeded with defs and no backing file.
func NewInMemory(awards AwardCounter, defs ...core.BadgeDefinition) (*Catalog, error) {
	c, _ := New("", awards)
	for _, d := range defs {
		if _, err := c.Create(context.Background(), d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Path returns the backing file, empty for an in-memory catalog.
func (c *Catalog) Path() string { return c.path }

func fold(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ListBadgeDefinitions returns every definition ordered by id.
func (c *Catalog) ListBadgeDefinitions(context.Context) ([]core.BadgeDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked(), nil
}

func (c *Catalog) sortedLocked() []core.BadgeDefinition {
	out := make([]core.BadgeDefinition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one definition.
func (c *Catalog) Get(_ context.Context, id core.BadgeID) (core.BadgeDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[id]
	if !ok {
		return core.BadgeDefinition{}, fmt.Errorf("badge %d: %w", id, core.ErrNotFound)
	}
	return d, nil
}

// Create adds a definition. A zero id is assigned; names are unique ignoring case.
func (c *Catalog) Create(_ context.Context, def core.BadgeDefinition) (core.BadgeDefinition, error) {
	def = normalize(def)
	if err := def.Validate(); err != nil {
		return core.BadgeDefinition{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if def.ID == 0 {
		def.ID = c.nextIDLocked()
	} else if _, exists := c.defs[def.ID]; exists {
		return core.BadgeDefinition{}, fmt.Errorf("badge %d already exists: %w", def.ID, core.ErrConflict)
	}
	if err := c.checkNameLocked(def); err != nil {
		return core.BadgeDefinition{}, err
	}
	c.defs[def.ID] = def
	if err := c.persistLocked(); err != nil {
		delete(c.defs, def.ID)
		return core.BadgeDefinition{}, err
	}
	c.log.Info("badge created", "badge_id", def.ID, "name", def.Name)
	return def, nil
}

// Update replaces an existing definition.
func (c *Catalog) Update(_ context.Context, def core.BadgeDefinition) (core.BadgeDefinition, error) {
	def = normalize(def)
	if err := def.Validate(); err != nil {
		return core.BadgeDefinition{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.defs[def.ID]
	if !ok {
		return core.BadgeDefinition{}, fmt.Errorf("badge %d: %w", def.ID, core.ErrNotFound)
	}
	if err := c.checkNameLocked(def); err != nil {
		return core.BadgeDefinition{}, err
	}
	c.defs[def.ID] = def
	if err := c.persistLocked(); err != nil {
		c.defs[def.ID] = prev
		return core.BadgeDefinition{}, err
	}
	c.log.Info("badge updated", "badge_id", def.ID)
	return def, nil
}

// Delete removes a definition that no learner holds.
func (c *Catalog) Delete(ctx context.Context, id core.BadgeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.defs[id]
	if !ok {
		return fmt.Errorf("badge %d: %w", id, core.ErrNotFound)
	}
	if c.awards != nil {
		n, err := c.awards.CountAwards(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("badge %d has been awarded to %d learners: %w", id, n, core.ErrConflict)
		}
	}
	delete(c.defs, id)
	if err := c.persistLocked(); err != nil {
		c.defs[id] = prev
		return err
	}
	c.log.Info("badge deleted", "badge_id", id)
	return nil
}

func normalize(def core.BadgeDefinition) core.BadgeDefinition {
	def.Name = strings.TrimSpace(def.Name)
	if kind, err := core.ParseConditionKind(string(def.Condition.Kind)); err == nil {
		def.Condition.Kind = kind
	}
	return def
}

func (c *Catalog) nextIDLocked() core.BadgeID {
	var max core.BadgeID
	for id := range c.defs {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (c *Catalog) checkNameLocked(def core.BadgeDefinition) error {
	key := fold(def.Name)
	for id, d := range c.defs {
		if id != def.ID && fold(d.Name) == key {
			return fmt.Errorf("badge name %q is taken by badge %d: %w", def.Name, id, core.ErrConflict)
		}
	}
	return nil
}

// Reload re-reads the backing file. On any error the current definitions are kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	defs, err := decode(b)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.defs = defs
	c.mu.Unlock()
	c.log.Info("badge catalog loaded", "path", c.path, "badges", len(defs))
	return nil
}

func decode(b []byte) (map[core.BadgeID]core.BadgeDefinition, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	if doc == nil {
		return nil, errors.New("badge catalog is empty")
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("decode badge catalog: %w", err)
	}
	defs := make(map[core.BadgeID]core.BadgeDefinition, len(file.Badges))
	names := make(map[string]core.BadgeID, len(file.Badges))
	for _, fb := range file.Badges {
		def := normalize(core.BadgeDefinition{
			ID:          core.BadgeID(fb.ID),
			Name:        fb.Name,
			Description: fb.Description,
			IconURL:     fb.IconURL,
			Condition:   fb.Condition,
		})
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("badge %d: %w", def.ID, err)
		}
		if _, dup := defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate badge id %d: %w", def.ID, core.ErrInvalidInput)
		}
		if other, dup := names[fold(def.Name)]; dup {
			return nil, fmt.Errorf("badge %d repeats the name of badge %d: %w", def.ID, other, core.ErrInvalidInput)
		}
		defs[def.ID] = def
		names[fold(def.Name)] = def.ID
	}
	return defs, nil
}

// persistLocked writes the catalog atomically; a no-op without a backing file.
func (c *Catalog) persistLocked() error {
	if c.path == "" {
		return nil
	}
	file := catalogFile{Badges: make([]fileBadge, 0, len(c.defs))}
	for _, d := range c.sortedLocked() {
		file.Badges = append(file.Badges, fileBadge{
			ID:          int64(d.ID),
			Name:        d.Name,
			Description: d.Description,
			IconURL:     d.IconURL,
			Condition:   d.Condition,
		})
	}
	b, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
