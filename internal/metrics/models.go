package metrics

import "sort"

// ModelBucket represents aggregated outcome counts for a single model.
type ModelBucket struct {
	Model   string `json:"model" yaml:"model"`
	Passed  int    `json:"passed" yaml:"passed"`
	Failed  int    `json:"failed" yaml:"failed"`
	Errored int    `json:"errored" yaml:"errored"`
}

// flattenModelBuckets converts the per-model map into a sorted slice of rows.
// Rows are sorted by descending case count, then by model name for stability.
func flattenModelBuckets(buckets map[string]*ModelBucket) []ModelBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]ModelBucket, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, *b)
	}
	sort.Slice(rows, func(i, j int) bool {
		ti := rows[i].Passed + rows[i].Failed + rows[i].Errored
		tj := rows[j].Passed + rows[j].Failed + rows[j].Errored
		if ti == tj {
			return rows[i].Model < rows[j].Model
		}
		return ti > tj
	})
	return rows
}
