package typing

// Unit is the value of effects that only matter for their side effect.
type Unit = struct{}
