// Package robot defines the robot-motion boundary for the glue cell.
//
// The execution engine drives the robot exclusively through the Service
// interface: blocking moves to a target point, non-blocking streaming of
// path points, and position/velocity feedback used by the pump speed
// adjustment loop.
//
// Sim is the built-in simulated implementation used by the sim driver and
// by tests; a hardware-backed implementation satisfies the same interface.
package robot
