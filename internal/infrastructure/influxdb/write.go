package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTileMetric writes a single tile measurement to InfluxDB.
//
// This is the primary method for recording tile telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - tileName: Tile identifier (e.g., "tile-07")
//   - measurement: The metric name (e.g., "brightness", "volume", "uptime")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteTileMetric("tile-07", "brightness", 80)
//	client.WriteTileMetric("tile-07", "uptime", 12345)
func (c *Client) WriteTileMetric(tileName string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"tile_metrics",
		map[string]string{
			"tile":        tileName,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePresenceEvent records a presence transition for a tile.
//
// Presence is stored as a 0/1 field so dashboards can graph occupancy
// over time and compute dwell durations.
func (c *Client) WritePresenceEvent(tileName string, detected bool) {
	if !c.IsConnected() {
		return
	}

	value := 0
	if detected {
		value = 1
	}

	point := write.NewPoint(
		"presence",
		map[string]string{
			"tile": tileName,
		},
		map[string]interface{}{
			"detected": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePlaybackEvent records an audio playback transition for a tile.
//
// Parameters:
//   - tileName: Tile identifier
//   - state: Playback state (0=idle, 1=playing, 2=paused)
//   - sound: The sound file involved, if any
func (c *Client) WritePlaybackEvent(tileName string, state int, sound string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"playback",
		map[string]string{
			"tile":  tileName,
			"sound": sound,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"tiles_online": 12, "ws_clients": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
