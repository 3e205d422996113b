package mqtt

import (
	"fmt"
	"strings"
)

// DefaultRootTopic is the topic root used when none is configured.
const DefaultRootTopic = "PM/MLT"

// Tile announcement payloads published to the tile's self topic.
const (
	PayloadOnline  = "ONLINE"
	PayloadOffline = "OFFLINE"
)

// Topics provides builders for tile bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// All tile topics live under a configurable root (default "PM/MLT"):
//
//	topics := mqtt.NewTopics("PM/MLT")
//	stateTopic := topics.TileState("tile-01", "audio")
//	// Returns: "PM/MLT/tile-01/self/state/audio"
type Topics struct {
	Root string
}

// NewTopics returns a Topics builder for the given root.
// An empty root falls back to DefaultRootTopic.
func NewTopics(root string) Topics {
	if root == "" {
		root = DefaultRootTopic
	}
	return Topics{Root: root}
}

func (t Topics) root() string {
	if t.Root == "" {
		return DefaultRootTopic
	}
	return t.Root
}

// TileAnnouncement returns the presence announcement topic for a tile.
// Tiles publish retained ONLINE/OFFLINE payloads here.
//
// Example: PM/MLT/tile-01/self
func (t Topics) TileAnnouncement(name string) string {
	return fmt.Sprintf("%s/%s/self", t.root(), name)
}

// TileState returns the state topic for one domain of a tile.
// Domains are: system, audio, light, presence.
//
// Example: PM/MLT/tile-01/self/state/light
func (t Topics) TileState(name, domain string) string {
	return fmt.Sprintf("%s/%s/self/state/%s", t.root(), name, domain)
}

// TileCommand returns the command topic for one domain of a tile.
// Domains are: system, audio, light.
//
// Example: PM/MLT/tile-01/self/command/audio
func (t Topics) TileCommand(name, domain string) string {
	return fmt.Sprintf("%s/%s/self/command/%s", t.root(), name, domain)
}

// BridgeStatus returns the bridge's own status topic.
//
// Example: PM/MLT/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.root())
}

// AllTileAnnouncements returns a pattern matching every tile's announcement topic.
//
// Pattern: PM/MLT/+/self
func (t Topics) AllTileAnnouncements() string {
	return fmt.Sprintf("%s/+/self", t.root())
}

// TileStates returns a pattern matching all state domains of one tile.
//
// Pattern: PM/MLT/tile-01/self/state/+
func (t Topics) TileStates(name string) string {
	return fmt.Sprintf("%s/%s/self/state/+", t.root(), name)
}

// AllTileStates returns a pattern matching state updates from every tile.
//
// Pattern: PM/MLT/+/self/state/+
func (t Topics) AllTileStates() string {
	return fmt.Sprintf("%s/+/self/state/+", t.root())
}

// ParseAnnouncement extracts the tile name from an announcement topic.
// Returns false if the topic is not under this root or not a self topic.
func (t Topics) ParseAnnouncement(topic string) (name string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "self" || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

// ParseState extracts the tile name and state domain from a state topic.
// Returns false if the topic is not a tile state topic under this root.
func (t Topics) ParseState(topic string) (name, domain string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "self" || parts[2] != "state" || parts[0] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[0], parts[3], true
}
