package engine

import "github.com/coffersTech/nanoflow/internal/model"

// TagTransactions prefixes every statement whose transaction id is shared
// with at least one other entry in the table.
//
// The comparison is global across sessions, so unrelated sessions that
// happen to log the same id (including an empty one) are tagged as well.
func TagTransactions(t *EntryTable) {
	counts := make(map[string]int, t.Len())
	for _, tx := range t.TxCol {
		counts[tx]++
	}
	for i, tx := range t.TxCol {
		if counts[tx] > 1 {
			t.StmtCol[i] = model.TransactionPrefix + t.StmtCol[i]
		}
	}
}
