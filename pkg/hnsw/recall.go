package hnsw

import (
	"cmp"
	"context"
)

// Recall measures top-1 self-recall: for each (id, item) pair, run a 1-NN
// search for item and count it a hit if id comes back as the nearest
// result. The denominator is the number of ids actually probed, not the
// length of the caller's full dataset, so a caller that samples only part
// of a large corpus still gets an accurate rate rather than one silently
// deflated by the unprobed remainder (§8).
func Recall[T any, D cmp.Ordered](g *Graph[T, D], ids []int, items []T) (float64, error) {
	hits := 0
	probed := 0
	for i, id := range ids {
		results, err := g.KNNSearch(context.Background(), items[i], 1, nil)
		if err != nil {
			return 0, err
		}
		probed++
		if len(results) > 0 && results[0].ID == id {
			hits++
		}
	}
	if probed == 0 {
		return 0, nil
	}
	return float64(hits) / float64(probed), nil
}
