package engine

import (
	"slices"
	"strings"

	"github.com/coffersTech/nanoflow/internal/model"
)

// ExtractSequences groups statements by session, keeping per-session order
// and the order in which sessions first appear, and drops every sequence
// equal to an earlier one.
func ExtractSequences(t *EntryTable) model.SequenceSet {
	var order []string
	bySession := make(map[string][]string)
	for i := 0; i < t.Len(); i++ {
		sess := t.SessCol[i]
		if _, ok := bySession[sess]; !ok {
			order = append(order, sess)
		}
		bySession[sess] = append(bySession[sess], t.StmtCol[i])
	}

	set := make(model.SequenceSet, 0, len(order))
	seen := make(map[string][]int) // sequence key -> indexes in set
	for _, sess := range order {
		seq := bySession[sess]
		key := sequenceKey(seq)
		if containsSequence(set, seen[key], seq) {
			continue
		}
		seen[key] = append(seen[key], len(set))
		set = append(set, seq)
	}
	return set
}

func sequenceKey(seq []string) string {
	return strings.Join(seq, "\x00")
}

func containsSequence(set model.SequenceSet, candidates []int, seq []string) bool {
	for _, i := range candidates {
		if slices.Equal(set[i], seq) {
			return true
		}
	}
	return false
}
