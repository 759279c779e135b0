package workflow

import (
	"fmt"
	"sort"

	"go-dataport/internal/features/imports"
)

// ResolutionSet tracks the user's per-duplicate decisions. Every
// detected duplicate starts with a confidence-based default and can be
// overridden individually or in bulk before submission.
type ResolutionSet struct {
	duplicates []imports.DuplicateRecord
	chosen     map[int]imports.Resolution
}

// NewResolutionSet seeds a resolution for every duplicate: high
// confidence matches default to skip, uncertain ones to create_new.
func NewResolutionSet(duplicates []imports.DuplicateRecord) *ResolutionSet {
	chosen := make(map[int]imports.Resolution, len(duplicates))
	for _, d := range duplicates {
		chosen[d.ImportRow] = imports.DefaultResolution(d.Confidence)
	}
	return &ResolutionSet{duplicates: duplicates, chosen: chosen}
}

func (r *ResolutionSet) Len() int { return len(r.duplicates) }

// Get returns the current resolution for an import row.
func (r *ResolutionSet) Get(row int) (imports.Resolution, bool) {
	res, ok := r.chosen[row]
	return res, ok
}

// Set overrides the resolution for one duplicate row. Rows that were
// not detected as duplicates are rejected.
func (r *ResolutionSet) Set(row int, res imports.Resolution) error {
	if !r.isDuplicate(row) {
		return fmt.Errorf("row %d is not a detected duplicate", row)
	}
	switch res {
	case imports.ResolutionSkip, imports.ResolutionUpdate, imports.ResolutionCreateNew:
	default:
		return fmt.Errorf("unknown resolution %q", res)
	}
	r.chosen[row] = res
	return nil
}

// ApplyAll sets every duplicate to the same resolution.
func (r *ResolutionSet) ApplyAll(res imports.Resolution) error {
	switch res {
	case imports.ResolutionSkip, imports.ResolutionUpdate, imports.ResolutionCreateNew:
	default:
		return fmt.Errorf("unknown resolution %q", res)
	}
	for _, d := range r.duplicates {
		r.chosen[d.ImportRow] = res
	}
	return nil
}

func (r *ResolutionSet) isDuplicate(row int) bool {
	for _, d := range r.duplicates {
		if d.ImportRow == row {
			return true
		}
	}
	return false
}

// Clear removes the resolution for one row, returning it to the
// unresolved state.
func (r *ResolutionSet) Clear(row int) {
	delete(r.chosen, row)
}

// Unresolved lists the duplicate rows that currently have no
// resolution, in ascending row order.
func (r *ResolutionSet) Unresolved() []int {
	var rows []int
	for _, d := range r.duplicates {
		if _, ok := r.chosen[d.ImportRow]; !ok {
			rows = append(rows, d.ImportRow)
		}
	}
	sort.Ints(rows)
	return rows
}

// Mapping returns the full row-to-resolution map for submission. Every
// duplicate must be resolved; a partial set is an error, not a silent
// default.
func (r *ResolutionSet) Mapping() (map[int]imports.Resolution, error) {
	if missing := r.Unresolved(); len(missing) > 0 {
		return nil, fmt.Errorf("%d duplicates unresolved (first: row %d)", len(missing), missing[0])
	}
	out := make(map[int]imports.Resolution, len(r.chosen))
	for row, res := range r.chosen {
		out[row] = res
	}
	return out, nil
}
