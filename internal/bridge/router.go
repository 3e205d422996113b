package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mltiles/tilebridge/internal/tile"
)

// CommandResult reports the outcome of a command for one target tile.
type CommandResult struct {
	// Tile is the target device name.
	Tile string

	// Err is nil on success. Per-name failures are sentinel-wrapped:
	// tile.ErrTileNotFound, tile.ErrTileOffline, tile.ErrInvalidCommand,
	// or a publish error.
	Err error
}

// SendCommand builds and publishes one command per named tile.
//
// Omitted argument fields are filled from each tile's last known state
// for that domain, so two tiles in different states receive different
// complete payloads. Unknown names and offline tiles are skipped with a
// per-name error; one bad name never aborts the rest of the batch.
//
// Returns one CommandResult per input name, in input order. The error
// return is non-nil only for request-level failures: an unknown command
// domain or arguments that do not parse.
func (b *Bridge) SendCommand(domain tile.Domain, names []string, args json.RawMessage) ([]CommandResult, error) {
	build, err := commandBuilder(domain, args)
	if err != nil {
		return nil, err
	}

	results := make([]CommandResult, 0, len(names))
	for _, name := range names {
		results = append(results, CommandResult{
			Tile: name,
			Err:  b.sendOne(domain, name, build),
		})
	}
	return results, nil
}

// commandBuilder parses the raw arguments once and returns a closure
// that builds the complete payload for one tile.
func commandBuilder(domain tile.Domain, args json.RawMessage) (func(t *tile.Tile) ([]byte, error), error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch domain {
	case tile.DomainSystem:
		var a tile.SystemCommandArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: system args: %w", tile.ErrInvalidCommand, err)
		}
		return func(t *tile.Tile) ([]byte, error) {
			return t.BuildSystemCommand(a)
		}, nil

	case tile.DomainAudio:
		var a tile.AudioCommandArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: audio args: %w", tile.ErrInvalidCommand, err)
		}
		return func(t *tile.Tile) ([]byte, error) {
			return t.BuildAudioCommand(a)
		}, nil

	case tile.DomainLight:
		var a tile.LightCommandArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: light args: %w", tile.ErrInvalidCommand, err)
		}
		return func(t *tile.Tile) ([]byte, error) {
			return t.BuildLightCommand(a)
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q is not a command domain", tile.ErrInvalidDomain, domain)
	}
}

// sendOne resolves one tile and publishes the built command to its
// command sub-topic. Returns nil on success.
func (b *Bridge) sendOne(domain tile.Domain, name string, build func(t *tile.Tile) ([]byte, error)) error {
	t, err := b.registry.Get(name)
	if err != nil {
		b.logWarn("command for unknown tile", "tile", name, "domain", string(domain))
		return err
	}

	if !t.Online() {
		b.logWarn("command for offline tile dropped", "tile", name, "domain", string(domain))
		return tile.ErrTileOffline
	}

	payload, err := build(t)
	if err != nil {
		b.logWarn("command build failed",
			"tile", name,
			"domain", string(domain),
			"error", err.Error())
		return err
	}

	topic := b.topics.TileCommand(name, string(domain))
	if err := b.bus.Publish(topic, payload, b.qos, false); err != nil {
		b.logError("command publish failed", err, "tile", name, "topic", topic)
		return fmt.Errorf("publish command: %w", err)
	}

	b.recordHistory(name, domain, string(payload), tile.HistorySourceCommand)
	b.logDebug("command sent", "tile", name, "topic", topic)

	return nil
}

// FailedResults filters a result batch down to the failures.
// Convenience for callers that only report problems.
func FailedResults(results []CommandResult) []CommandResult {
	var failed []CommandResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// IsSkip reports whether a per-name error is one of the expected
// skip conditions rather than a transport failure.
func IsSkip(err error) bool {
	return errors.Is(err, tile.ErrTileNotFound) || errors.Is(err, tile.ErrTileOffline)
}
