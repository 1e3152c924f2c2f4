// Package mqtt provides MQTT client connectivity for the glue cell controller.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The cell uses MQTT as the message bus connecting the controller to the
// spray hardware bridge and to external operator tooling. The broker
// (Mosquitto) decouples the controller from hardware-specific transports.
//
//	Controller ↔ MQTT Broker ↔ Spray Hardware Bridge / Dashboards
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to operator commands
//	err = client.Subscribe(mqtt.Topics{}.OperationCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Command a spray actuator
//	topic := mqtt.Topics{}.SprayCommand("pump")
//	client.Publish(topic, []byte(`{"action":"on","speed":10000}`), 1, false)
package mqtt
