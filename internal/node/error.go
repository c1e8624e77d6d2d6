package node

import (
	"errors"
	"fmt"
)

// ErrNoSamples is returned when none of a node's rows survive filtering.
var ErrNoSamples = errors.New("no usable node samples")

// SchemaError reports a column mapping that cannot address a row.
type SchemaError struct {
	Column string
	Index  int
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s column %d: %s", e.Column, e.Index, e.Reason)
}
