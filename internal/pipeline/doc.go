// Package pipeline is the per-frame orchestrator of the flow sensor.
//
// A Session owns all mutable pipeline state. Each call to Poll checks the
// frame source for a fresh pair and, when one is available, runs one
// cycle in order:
//
//	cache resolve → gyro compensation → flow estimation → outlier extraction
//	→ accumulator feed → (every throttle-factor cycles) telemetry emission
//
// The pair is returned to the frame source as soon as the estimator and the
// optional debug annotation are done with it. Housekeeping tasks (distance
// polling, heartbeat, inbound commands, parameter and video transmission)
// are registered on a scheduler.Scheduler by RegisterTasks and run from the
// same goroutine as Poll.
package pipeline
