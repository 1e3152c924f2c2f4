package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePumpMetric records a pump speed sample for a dispensing run.
//
// This is the primary method for recording pump telemetry while the
// speed adjustment loop is active. The write is non-blocking; data is
// batched and sent asynchronously.
//
// Parameters:
//   - runID: Unique identifier for the dispensing run
//   - pathIndex: Index of the path currently being sprayed
//   - commandedSpeed: Speed last sent to the pump motor
//   - velocity: Robot TCP velocity driving the adjustment
//   - acceleration: Robot TCP acceleration driving the adjustment
//
// Example:
//
//	client.WritePumpMetric(runID, 0, 9800, 122.5, 14.2)
func (c *Client) WritePumpMetric(runID string, pathIndex int, commandedSpeed float64, velocity float64, acceleration float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pump",
		map[string]string{
			"run_id": runID,
		},
		map[string]interface{}{
			"path_index":      pathIndex,
			"commanded_speed": commandedSpeed,
			"velocity":        velocity,
			"acceleration":    acceleration,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMotionMetric records a robot motion sample for a dispensing run.
//
// Used for tracking TCP position and progress during path execution.
//
// Parameters:
//   - runID: Unique identifier for the dispensing run
//   - pathIndex: Index of the path currently being sprayed
//   - pointIndex: Index of the last streamed point
//   - x, y: Current TCP position in millimetres
func (c *Client) WriteMotionMetric(runID string, pathIndex int, pointIndex int, x float64, y float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"motion",
		map[string]string{
			"run_id": runID,
		},
		map[string]interface{}{
			"path_index":  pathIndex,
			"point_index": pointIndex,
			"x":           x,
			"y":           y,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateTransition records a state machine transition for a run.
//
// Parameters:
//   - runID: Unique identifier for the dispensing run
//   - from: State the machine left
//   - to: State the machine entered
func (c *Client) WriteStateTransition(runID string, from string, to string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transitions",
		map[string]string{
			"run_id": runID,
			"from":   from,
			"to":     to,
		},
		map[string]interface{}{
			"count": 1,
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
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "cell-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
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
