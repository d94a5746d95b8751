// Package resource declares the time-varying variables a plan simulates.
//
// A resource pairs an identity (process-unique ID, label, write type) with a
// data contract of three forms:
//
//	Write  (W)  the value an operation produces and History stores
//	Read   (R)  the shareable handle downstream operations receive
//	Sample (S)  the cheap value an operation body reads
//
// and the conversions between them: ToRead(w, written), Evolve(r, now) and
// Sample(r, now). Discrete resources hold a snapshot that does not change
// between writes. Continuous resources (Polynomial) describe a formula that
// keeps evolving after it is written.
//
// The engine handles resources through the type-erased Handle interface.
// Every erased conversion checks the dynamic type and returns *TypeError on
// mismatch instead of panicking.
package resource
