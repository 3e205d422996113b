package tile

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds every tile the bridge has ever sighted.
//
// Tiles are created exactly once per device name, lazily, on first bus
// sighting. They are never removed; a tile that goes offline keeps its
// last-known state for the registry's lifetime.
//
// All public methods are thread-safe.
type Registry struct {
	tiles  map[string]*Tile
	mu     sync.RWMutex
	logger Logger
}

// NewRegistry creates an empty tile registry.
func NewRegistry() *Registry {
	return &Registry{
		tiles:  make(map[string]*Tile),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Get retrieves a tile by name.
// Returns ErrTileNotFound if the tile has never been sighted.
func (r *Registry) Get(name string) (*Tile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tiles[name]
	if !ok {
		return nil, ErrTileNotFound
	}
	return t, nil
}

// GetOrCreate returns the tile for name, creating it on first sighting.
// The created flag is true only for the call that performed the creation.
func (r *Registry) GetOrCreate(name string) (t *Tile, created bool) {
	r.mu.RLock()
	t, ok := r.tiles[name]
	r.mu.RUnlock()
	if ok {
		return t, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another sighting may have won.
	if t, ok = r.tiles[name]; ok {
		return t, false
	}

	t = New(name)
	r.tiles[name] = t
	r.logger.Info("tile created", "tile", name)
	return t, true
}

// Names returns the names of all known tiles, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tiles))
	for name := range r.tiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all known tiles, sorted by name.
func (r *Registry) List() []*Tile {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	tiles := make([]*Tile, 0, len(names))
	for _, name := range names {
		tiles = append(tiles, r.tiles[name])
	}
	return tiles
}

// Count returns the number of known tiles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiles)
}
