// Package compiler turns CUE resource models into resource registries.
//
// A model declares resources under the resource field:
//
//	resource: battery: {kind: "float", default: 100, doc: "state of charge"}
//	resource: mode:    {kind: "int"}
//	resource: speed:   {kind: "poly"}
//
// Models are unified with a built-in schema, so an unknown kind or a stray
// field is reported with its CUE position. Validate applies the checks CUE
// cannot express, such as a fractional default on an int resource.
package compiler
