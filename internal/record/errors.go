package record

import "fmt"

// SchemaMismatchError indicates payload bytes that do not match the fixed
// layout expected for a record kind.
type SchemaMismatchError struct {
	Kind   Kind
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s record does not match schema: %s", e.Kind, e.Reason)
}

// ValueOutOfRangeError indicates an edited value that cannot be
// represented in its field: a threshold outside the display scale or a
// colour channel outside 0-255.
type ValueOutOfRangeError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *ValueOutOfRangeError) Error() string {
	return fmt.Sprintf("%s = %d outside representable range %d..%d", e.Field, e.Value, e.Min, e.Max)
}

// LengthMismatchError indicates an encode whose output would differ in
// length from the original payload.
type LengthMismatchError struct {
	Kind Kind
	Want int
	Got  int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s record encodes to %d bytes, original is %d", e.Kind, e.Got, e.Want)
}

// InvariantError indicates a decoded-value invariant violated by an edit:
// non-contiguous threshold ranges, or a tier without exactly one colour.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s invariant violated: %s", e.Invariant, e.Detail)
}
