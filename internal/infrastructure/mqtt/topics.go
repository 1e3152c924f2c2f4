package mqtt

import "fmt"

// Topic prefixes for the Glue Cell MQTT namespace.
//
// All cell topics use the flat scheme: gluecell/{category}/{subject}
// This matches what the spray hardware bridge and any dashboards subscribe to.
const (
	// TopicPrefix is the base for all cell topics.
	TopicPrefix = "gluecell"

	// TopicPrefixProcess is the base for dispensing process topics.
	TopicPrefixProcess = "gluecell/process"

	// TopicPrefixOperation is the base for operation lifecycle topics.
	TopicPrefixOperation = "gluecell/operation"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "gluecell/system"
)

// Topics provides builders for Glue Cell MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.SprayCommand("pump")
//	// Returns: "gluecell/command/spray/pump"
type Topics struct{}

// =============================================================================
// Process Topics
// =============================================================================

// ProcessState returns the topic for dispensing state machine transitions.
//
// Example: gluecell/process/state
func (Topics) ProcessState() string {
	return fmt.Sprintf("%s/state", TopicPrefixProcess)
}

// ProcessProgress returns the topic for path/point progress updates.
//
// Example: gluecell/process/progress
func (Topics) ProcessProgress() string {
	return fmt.Sprintf("%s/progress", TopicPrefixProcess)
}

// ProcessFault returns the topic for dispensing fault notifications.
//
// Example: gluecell/process/fault
func (Topics) ProcessFault() string {
	return fmt.Sprintf("%s/fault", TopicPrefixProcess)
}

// =============================================================================
// Operation Topics
// =============================================================================

// OperationCommand returns the topic on which start/pause/resume/stop
// commands are received.
//
// Example: gluecell/operation/command
func (Topics) OperationCommand() string {
	return fmt.Sprintf("%s/command", TopicPrefixOperation)
}

// OperationState returns the topic for operation state announcements.
//
// Example: gluecell/operation/state
func (Topics) OperationState() string {
	return fmt.Sprintf("%s/state", TopicPrefixOperation)
}

// OperationResult returns the topic for command outcome publications.
//
// Example: gluecell/operation/result
func (Topics) OperationResult() string {
	return fmt.Sprintf("%s/result", TopicPrefixOperation)
}

// =============================================================================
// Spray Hardware Topics
// =============================================================================

// SprayCommand returns the topic for commands to a spray actuator.
// Actuator is one of "pump", "generator", or "fan".
//
// Example: gluecell/command/spray/pump
func (Topics) SprayCommand(actuator string) string {
	return fmt.Sprintf("%s/command/spray/%s", TopicPrefix, actuator)
}

// SprayAck returns the topic for command acknowledgements from a spray actuator.
//
// Example: gluecell/ack/spray/pump
func (Topics) SprayAck(actuator string) string {
	return fmt.Sprintf("%s/ack/spray/%s", TopicPrefix, actuator)
}

// SprayHealth returns the topic for spray hardware health status.
//
// Example: gluecell/health/spray
func (Topics) SprayHealth() string {
	return fmt.Sprintf("%s/health/spray", TopicPrefix)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: gluecell/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSprayAcks returns a pattern matching all spray actuator acknowledgements.
//
// Pattern: gluecell/ack/spray/+
func (Topics) AllSprayAcks() string {
	return fmt.Sprintf("%s/ack/spray/+", TopicPrefix)
}
