// Package config handles loading and validating Glue Cell Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// The glue section carries the engine flags (segment settings, pump-off
// between paths, dynamic speed adjustment) and the global fallback value for
// every per-segment setting: pump speeds and ramps, timing delays, spray
// geometry, and path thresholds. A spray path that does not override a value
// inherits it from here, never from a zero value.
package config
