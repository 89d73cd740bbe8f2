package ontology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ekaya-inc/ontology-impact/pkg/apperrors"
	"github.com/ekaya-inc/ontology-impact/pkg/models"
)

// Diff compares two snapshots of the same graph.
//
// Every IRI in exactly one snapshot yields an Added or Deleted record. An IRI
// present in both yields a Modified record when its kind or label differs.
// The result is sorted by IRI and each IRI appears at most once.
func Diff(previous, current *models.GraphSnapshot) ([]models.ChangeRecord, error) {
	if previous == nil || current == nil {
		return nil, errors.New("diff requires two snapshots")
	}
	if previous.GraphIRI() != current.GraphIRI() {
		return nil, fmt.Errorf("%w: %s vs %s", apperrors.ErrGraphMismatch, previous.GraphIRI(), current.GraphIRI())
	}

	var changes []models.ChangeRecord

	for _, before := range previous.Elements() {
		after, ok := current.Get(before.IRI)
		if !ok {
			b := before
			changes = append(changes, models.ChangeRecord{
				Kind:   models.ChangeKindDeleted,
				IRI:    before.IRI,
				Before: &b,
			})
			continue
		}
		if !descriptorsEqual(before, after) {
			b, a := before, after
			changes = append(changes, models.ChangeRecord{
				Kind:   models.ChangeKindModified,
				IRI:    before.IRI,
				Before: &b,
				After:  &a,
			})
		}
	}

	for _, after := range current.Elements() {
		if previous.Contains(after.IRI) {
			continue
		}
		a := after
		changes = append(changes, models.ChangeRecord{
			Kind:  models.ChangeKindAdded,
			IRI:   after.IRI,
			After: &a,
		})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].IRI < changes[j].IRI })
	return changes, nil
}

func descriptorsEqual(a, b models.ElementDescriptor) bool {
	if a.Kind != b.Kind {
		return false
	}
	if (a.Label == nil) != (b.Label == nil) {
		return false
	}
	return a.Label == nil || *a.Label == *b.Label
}

// Summarize counts change records by kind.
func Summarize(changes []models.ChangeRecord) models.ChangeSummary {
	var s models.ChangeSummary
	for _, c := range changes {
		switch c.Kind {
		case models.ChangeKindAdded:
			s.Added++
		case models.ChangeKindDeleted:
			s.Deleted++
		case models.ChangeKindModified:
			s.Modified++
		}
	}
	s.Total = len(changes)
	return s
}

// FilterChanges returns the records of the given kinds, preserving order.
func FilterChanges(changes []models.ChangeRecord, kinds ...models.ChangeKind) []models.ChangeRecord {
	want := make(map[models.ChangeKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.ChangeRecord
	for _, c := range changes {
		if want[c.Kind] {
			out = append(out, c)
		}
	}
	return out
}
