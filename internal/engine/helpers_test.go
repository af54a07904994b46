package engine

import "github.com/coffersTech/nanoflow/internal/model"

// logRow builds a csvlog-shaped row with the fields the classifier reads.
func logRow(session, tx, msg string) model.LogRow {
	row := make(model.LogRow, 23)
	row[0] = "2024-03-01 10:00:00.000 UTC"
	row[model.ColSession] = session
	row[model.ColTransaction] = tx
	row[11] = "LOG"
	row[model.ColStatement] = msg
	return row
}

// stmtRow builds a statement row whose normalized form is sql.
func stmtRow(session, tx, sql string) model.LogRow {
	return logRow(session, tx, "statement: "+sql)
}

func tableOf(entries ...model.Entry) *EntryTable {
	t := NewEntryTable(len(entries))
	for _, e := range entries {
		t.Append(e)
	}
	return t
}

func edgeIDs(g *model.Graph) map[string]bool {
	ids := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		ids[e.ID] = true
	}
	return ids
}
