// Package influxdb provides InfluxDB connectivity for the glue cell controller.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, metric writing, and health monitoring suited to the cell.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Pump speed adjustment telemetry
//   - Robot motion progress during path execution
//   - State machine transition history
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "glueworks",
//	    Bucket: "gluecell",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record pump telemetry
//	client.WritePumpMetric(runID, 0, 9800, 122.5, 14.2)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
