// Package overrides keeps the remotely tunable part of the policy kernel: belief
// text and the list of disabled rule IDs. Rule logic itself is never remote.
package overrides

import (
	"slices"
	"time"
)

// Document is the override document served by the remote endpoint and cached
// locally. Field names follow the remote wire format.
type Document struct {
	Beliefs               map[string]string `json:"beliefs,omitempty" jsonschema:"description=Replacement text keyed by default belief ID"`
	CustomBeliefs         []string          `json:"customBeliefs,omitempty" jsonschema:"description=Beliefs appended after the defaults"`
	DisabledConstraintIDs []string          `json:"disabledConstraintIds,omitempty" jsonschema:"description=Rule IDs to skip during evaluation"`
	Version               int               `json:"version" jsonschema:"minimum=0"`
	LastUpdated           time.Time         `json:"lastUpdated"`
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	cp := d
	if d.Beliefs != nil {
		cp.Beliefs = make(map[string]string, len(d.Beliefs))
		for k, v := range d.Beliefs {
			cp.Beliefs[k] = v
		}
	}
	cp.CustomBeliefs = slices.Clone(d.CustomBeliefs)
	cp.DisabledConstraintIDs = slices.Clone(d.DisabledConstraintIDs)
	return cp
}

// IsDisabled reports whether id is in the disabled list.
func (d Document) IsDisabled(id string) bool {
	return slices.Contains(d.DisabledConstraintIDs, id)
}
