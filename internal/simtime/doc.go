// Package simtime defines simulation time for Horizon.
//
// Simulation time is an offset from the plan epoch. Because several
// operations may be placed at the same instant, ordering between them uses
// dense time: the instant plus a logical insertion order stamped by Clock.
//
// Dense time never consults the wall clock. Two plans built from the same
// insertions produce identical dense times, which keeps evaluation
// reproducible regardless of task interleaving.
package simtime
