// Package model provides the numeric resource kinds and the built-in
// activity library used by scenarios and the CLI.
//
// Resources come in three kinds: int (int64 values), float (float64 values)
// and poly (piecewise polynomials of time in seconds). Activities are built
// by label from decoded arguments against a resource.Registry:
//
//	set          {resource, value}
//	increment    {resource, by}
//	copy         {from, to}
//	delayed_set  {resource, value, delay | delay_from, min, max}
//	ramp         {resource, rate}
//	fail         {resource, message}
//
// Time arguments are duration strings ("250ms", "1.5s") or whole seconds.
// Fractional numbers are passed as decimal strings.
package model
