// Package spray defines the device boundary for the cell's spray
// hardware: adhesive pump, heat/air generator, and fan.
//
// The execution engine drives the hardware exclusively through the
// Service interface. All operations return success/failure rather than
// panicking past the boundary; idempotence of pump on/off is handled one
// level up by the dispense package's PumpController.
//
// Bridge is the MQTT-backed implementation publishing JSON commands to
// the spray hardware bridge; Sim is an in-memory implementation that
// records calls for the sim driver and tests.
package spray
