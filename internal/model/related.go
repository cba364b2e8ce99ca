package model

import "encoding/json"

// Related is the loaded value of one relation on one record.
//
// Single relations set One or Absent; collection relations set Many (which
// may be empty, never nil after loading).
type Related struct {
	One     *Record
	Many    []*Record
	Absent  bool
	Single  bool
	Default bool // One is the configured placeholder, not a stored row
}

// One wraps a resolved single target.
func One(r *Record) *Related { return &Related{One: r, Single: true} }

// DefaultOne wraps the placeholder used when a single target is missing.
func DefaultOne(r *Record) *Related { return &Related{One: r, Single: true, Default: true} }

// AbsentOne marks a single relation whose target does not exist.
func AbsentOne() *Related { return &Related{Absent: true, Single: true} }

// Many wraps a child collection.
func Many(rs []*Record) *Related {
	if rs == nil {
		rs = []*Record{}
	}
	return &Related{Many: rs}
}

// Records returns the loaded records regardless of cardinality.
func (r *Related) Records() []*Record {
	if r == nil {
		return nil
	}
	if r.Single {
		if r.One == nil {
			return nil
		}
		return []*Record{r.One}
	}
	return r.Many
}

func (r *Related) MarshalJSON() ([]byte, error) {
	if r.Single {
		if r.Absent || r.One == nil {
			return []byte("null"), nil
		}
		return json.Marshal(r.One)
	}
	return json.Marshal(r.Many)
}
