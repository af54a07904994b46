package engine

import (
	"sort"

	"github.com/coffersTech/nanoflow/internal/model"
)

// EntryTable stores classified entries in columnar format.
// It is the working set of one transform pass and is not safe for
// concurrent use.
type EntryTable struct {
	StmtCol []string // Statement, possibly "T:"-prefixed after tagging
	SessCol []string // Session id
	TxCol   []string // Transaction id
}

// NewEntryTable initializes an EntryTable with pre-allocated capacity.
func NewEntryTable(capacity int) *EntryTable {
	return &EntryTable{
		StmtCol: make([]string, 0, capacity),
		SessCol: make([]string, 0, capacity),
		TxCol:   make([]string, 0, capacity),
	}
}

// Append adds an entry at the end of the table.
func (t *EntryTable) Append(e model.Entry) {
	t.StmtCol = append(t.StmtCol, e.Statement)
	t.SessCol = append(t.SessCol, e.Session)
	t.TxCol = append(t.TxCol, e.Transaction)
}

// Len returns the number of entries.
func (t *EntryTable) Len() int {
	return len(t.StmtCol)
}

// SortBySession reorders entries by session id. The sort is stable, so
// entries of one session keep their arrival order.
func (t *EntryTable) SortBySession() {
	sort.Stable(bySession{t})
}

type bySession struct{ t *EntryTable }

func (s bySession) Len() int           { return s.t.Len() }
func (s bySession) Less(i, j int) bool { return s.t.SessCol[i] < s.t.SessCol[j] }
func (s bySession) Swap(i, j int) {
	t := s.t
	t.StmtCol[i], t.StmtCol[j] = t.StmtCol[j], t.StmtCol[i]
	t.SessCol[i], t.SessCol[j] = t.SessCol[j], t.SessCol[i]
	t.TxCol[i], t.TxCol[j] = t.TxCol[j], t.TxCol[i]
}
