// Package harness runs scripted plan scenarios.
//
// A scenario declares resources, edits a plan step by step, and checks
// samples and views against expectations. Each run produces a text trace
// that golden tests compare.
//
// # Scenario Format
//
//	name: battery_drain
//	description: "Charge then drain"
//	model: battery.cue           # or an inline resources: map
//	initial: { charge: 50 }
//	steps:
//	  - insert: { id: c, activity: increment, at: 10s, args: { resource: charge, by: 20 } }
//	  - sample: { resource: charge, at: 15s, expect: 70 }
//	  - view:
//	      resource: charge
//	      from: 0s
//	      to: 20s
//	      expect: [{ at: 0s, value: 50 }, { at: 10s, value: 70 }]
//	  - remove: c
//	  - sample: { resource: charge, at: 15s, expect: 50 }
//
// Times are duration strings or whole seconds. Fractional numbers in
// activity arguments are written as strings ("2.5").
//
// A step may set expect_error instead of expect; it matches when one of
// the reported failures starts with it (for example "UNREACHABLE" or
// "BODY_FAILED fail").
package harness
