// Package tile provides the in-memory mirror of the tile fleet.
//
// Each physical or emulated tile exposes four state domains (system, audio,
// light, presence) plus an online flag. This package manages:
//   - Typed per-domain state with a validating parse step at the boundary
//   - The audio playback state machine shared with the emulator
//   - Command payload construction with current-state defaulting
//   - A thread-safe registry of tiles, created lazily on first sighting
//   - Optional SQLite-backed state change history
//
// State updates arrive as raw JSON payloads from the message bus. A payload
// that fails to parse, is missing a required field, or carries a wrong type
// leaves the tile's previous state for that domain untouched and returns
// ErrInvalidState; malformed input never crashes the bridge.
//
// Concurrency:
//   - Tile methods hold a per-tile mutex; update-plus-snapshot sequences
//     are atomic with respect to concurrent commands on the same tile.
//   - The Registry guards its map with its own lock; tiles themselves are
//     never removed, only marked offline.
package tile
