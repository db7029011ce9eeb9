package diff

import "github.com/starford/cardsync/internal/models"

// Combine sums the card counts of diffs. Each diff counts as one successfully
// sent document. The result does not depend on the order of diffs.
func Combine(diffs ...models.SendDiff) models.AggregateDiff {
	var agg models.AggregateDiff
	for _, d := range diffs {
		agg.Summary = agg.Summary.Add(d.Summary())
		agg.Documents++
	}
	return agg
}

// Merge adds two aggregates together.
func Merge(a, b models.AggregateDiff) models.AggregateDiff {
	return models.AggregateDiff{
		Summary:   a.Summary.Add(b.Summary),
		Documents: a.Documents + b.Documents,
		Failed:    a.Failed + b.Failed,
	}
}
