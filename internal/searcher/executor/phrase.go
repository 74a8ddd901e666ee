package executor

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
)

// matchPhrase returns the documents in which the terms of lists occur at
// the given relative offsets within a single zone. Lists are walked by an
// ordered merge on (DocID, Zone); positions of aligned postings are merged
// the same way.
func matchPhrase(ctx context.Context, lists []index.PostingList, offsets []int) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, l := range lists {
		if len(l) == 0 {
			return out, nil
		}
	}
	idx := make([]int, len(lists))
	steps := 0
	for {
		steps++
		if steps%checkEvery == 0 {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
		}
		lead := &lists[0][idx[0]]
		for i := 1; i < len(lists); i++ {
			if head := &lists[i][idx[i]]; keyLess(lead, head) {
				lead = head
			}
		}
		aligned := true
		for i := range lists {
			for idx[i] < len(lists[i]) && keyLess(&lists[i][idx[i]], lead) {
				idx[i]++
			}
			if idx[i] == len(lists[i]) {
				return out, nil
			}
			if keyLess(lead, &lists[i][idx[i]]) {
				aligned = false
			}
		}
		if !aligned {
			continue
		}
		if positionsAligned(lists, idx, offsets) {
			out.Add(lists[0][idx[0]].Ord)
		}
		for i := range idx {
			idx[i]++
			if idx[i] == len(lists[i]) {
				return out, nil
			}
		}
	}
}

func positionsAligned(lists []index.PostingList, idx []int, offsets []int) bool {
	cursor := make([]int, len(lists))
	first := lists[0][idx[0]].Positions
next:
	for _, p := range first {
		for i := 1; i < len(lists); i++ {
			positions := lists[i][idx[i]].Positions
			target := p + offsets[i] - offsets[0]
			for cursor[i] < len(positions) && positions[cursor[i]] < target {
				cursor[i]++
			}
			if cursor[i] == len(positions) {
				return false
			}
			if positions[cursor[i]] != target {
				continue next
			}
		}
		return true
	}
	return false
}

func keyLess(a, b *index.Posting) bool {
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.Zone < b.Zone
}
