package api

import "encoding/json"

// Client protocol actions and types.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionCommand     = "command"
	ActionTiles       = "tiles"
	ActionState       = "state"
	ActionWelcome     = "welcome"

	// Subscription targets.
	TypeTiles = "tiles"
	TypeState = "state"

	// Tile-list change types.
	TileListSnapshot = "list"
	TileListAdd      = "add"
	TileListRemove   = "remove"

	// StateFull marks a complete snapshot rather than one sub-domain.
	StateFull = "full"
)

// ClientRequest is the envelope for every inbound client message.
//
// Tiles and Args are only meaningful for some action/type combinations;
// unused fields are ignored.
type ClientRequest struct {
	Action string          `json:"action"`
	Type   string          `json:"type"`
	Tiles  []string        `json:"tiles,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// TilesMessage announces tile-list contents or changes to discovery
// subscribers. Type is "list" for a full snapshot, "add" or "remove"
// for increments.
type TilesMessage struct {
	Action string   `json:"action"`
	Type   string   `json:"type"`
	Tiles  []string `json:"tiles"`
}

// StateMessage carries one tile's state to a subscriber. Type names the
// changed sub-domain, or "full" for the snapshot sent on subscribe.
type StateMessage struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Tile   string `json:"tile"`
	Args   any    `json:"args"`
}

// WelcomeMessage is sent once to every client on connect.
type WelcomeMessage struct {
	Action string `json:"action"`
}

func newTilesMessage(changeType string, tiles []string) TilesMessage {
	if tiles == nil {
		tiles = []string{}
	}
	return TilesMessage{Action: ActionTiles, Type: changeType, Tiles: tiles}
}

func newStateMessage(stateType, tileName string, args any) StateMessage {
	return StateMessage{Action: ActionState, Type: stateType, Tile: tileName, Args: args}
}
