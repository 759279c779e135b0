package imports

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go-dataport/internal/features/record"
	"go-dataport/internal/features/template"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// reportConfidence is the score below which a candidate match is not worth
// surfacing to the user at all.
const reportConfidence = 40.0

// detectDuplicates scores every import row against existing records in the
// job's category. At most one duplicate (the best candidate) is reported
// per row.
func detectDuplicates(ctx context.Context, repo record.RecordRepository, tpl *template.MappingTemplate, rows []map[string]string) ([]DuplicateRecord, error) {
	dedupe := tpl.DedupeFields()
	if len(dedupe) == 0 {
		return nil, nil
	}

	var duplicates []DuplicateRecord
	for i, row := range rows {
		mapped := mapRow(tpl, row)

		probe := make(map[string]interface{})
		for field := range dedupe {
			if v, ok := mapped[field]; ok {
				probe[field] = v
			}
		}
		if len(probe) == 0 {
			continue
		}

		candidates, err := repo.FindByAnyField(ctx, tpl.Category, probe)
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup for row %d: %w", i+1, err)
		}

		best, ok := bestCandidate(dedupe, mapped, candidates)
		if !ok {
			continue
		}
		best.ImportRow = i + 1
		best.Differences = fieldDifferences(mapped, candidateByID(candidates, best.ExistingID))
		duplicates = append(duplicates, best)
	}

	return duplicates, nil
}

func bestCandidate(dedupe map[string]int, mapped map[string]interface{}, candidates []map[string]interface{}) (DuplicateRecord, bool) {
	var best DuplicateRecord
	found := false

	for _, cand := range candidates {
		confidence, matched := scoreCandidate(dedupe, mapped, cand)
		if confidence < reportConfidence {
			continue
		}
		if !found || confidence > best.Confidence {
			best = DuplicateRecord{
				ExistingID:    candidateID(cand),
				MatchedFields: matched,
				Confidence:    confidence,
			}
			found = true
		}
	}

	return best, found
}

// scoreCandidate computes confidence as the weighted share of dedupe fields
// whose values agree, scaled to 0-100. Comparison is case-insensitive on
// trimmed strings.
func scoreCandidate(dedupe map[string]int, mapped map[string]interface{}, candidate map[string]interface{}) (float64, []string) {
	totalWeight := 0
	matchedWeight := 0
	var matched []string

	for field, weight := range dedupe {
		totalWeight += weight
		iv, ok := mapped[field]
		if !ok {
			continue
		}
		cv, ok := candidate[field]
		if !ok {
			continue
		}
		if equalValues(iv, cv) {
			matchedWeight += weight
			matched = append(matched, field)
		}
	}

	if totalWeight == 0 {
		return 0, nil
	}

	sort.Strings(matched)
	return float64(matchedWeight) * 100 / float64(totalWeight), matched
}

func equalValues(a, b interface{}) bool {
	return strings.EqualFold(strings.TrimSpace(stringify(a)), strings.TrimSpace(stringify(b)))
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func candidateID(candidate map[string]interface{}) string {
	switch id := candidate["_id"].(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	}
	return ""
}

func candidateByID(candidates []map[string]interface{}, id string) map[string]interface{} {
	for _, c := range candidates {
		if candidateID(c) == id {
			return c
		}
	}
	return nil
}

// fieldDifferences lists mapped fields whose values diverge between the
// import row and the matched record.
func fieldDifferences(mapped map[string]interface{}, existing map[string]interface{}) []FieldDifference {
	if existing == nil {
		return nil
	}

	fields := make([]string, 0, len(mapped))
	for f := range mapped {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var diffs []FieldDifference
	for _, f := range fields {
		iv := stringify(mapped[f])
		ev := stringify(existing[f])
		if !strings.EqualFold(strings.TrimSpace(iv), strings.TrimSpace(ev)) {
			diffs = append(diffs, FieldDifference{
				Field:         f,
				ImportValue:   iv,
				ExistingValue: ev,
			})
		}
	}
	return diffs
}

// ValidateResolutions checks a submitted mapping for completeness: every
// duplicate row must be covered and no unknown rows may appear.
func ValidateResolutions(duplicates []DuplicateRecord, resolutions map[string]Resolution) error {
	known := make(map[string]bool, len(duplicates))
	for _, d := range duplicates {
		known[strconv.Itoa(d.ImportRow)] = true
	}

	for row, res := range resolutions {
		if !known[row] {
			return fmt.Errorf("row %s is not in the duplicate set", row)
		}
		switch res {
		case ResolutionSkip, ResolutionUpdate, ResolutionCreateNew:
		default:
			return fmt.Errorf("unknown resolution %q for row %s", res, row)
		}
	}

	var missing []string
	for _, d := range duplicates {
		if _, ok := resolutions[strconv.Itoa(d.ImportRow)]; !ok {
			missing = append(missing, strconv.Itoa(d.ImportRow))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unresolved duplicate rows: %s", strings.Join(missing, ", "))
	}

	return nil
}
