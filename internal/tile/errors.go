package tile

import "errors"

// Domain errors for the tile package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, tile.ErrTileNotFound) {
//	    // handle not found case
//	}
var (
	// ErrTileNotFound is returned when a tile name does not exist in the registry.
	ErrTileNotFound = errors.New("tile: not found")

	// ErrInvalidState is returned when a state payload fails to parse or
	// validate. The tile's previous state for that domain is left untouched.
	ErrInvalidState = errors.New("tile: invalid state payload")

	// ErrInvalidDomain is returned when a state domain is not recognised.
	ErrInvalidDomain = errors.New("tile: invalid state domain")

	// ErrInvalidPixel is returned when a pixel channel is outside 0-255.
	ErrInvalidPixel = errors.New("tile: pixel channel out of range")

	// ErrInvalidCommand is returned when command arguments fail validation.
	ErrInvalidCommand = errors.New("tile: invalid command")

	// ErrTileOffline is returned when a command targets a tile whose last
	// announcement was OFFLINE. The command is dropped, never queued.
	ErrTileOffline = errors.New("tile: offline")
)
