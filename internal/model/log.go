package model

// Positions of the csvlog fields read by the classifier.
// Every other position in a row is ignored.
const (
	ColSession     = 3
	ColTransaction = 9
	ColStatement   = 13
)

// LogRow is one record of a PostgreSQL CSV log, as parsed fields.
type LogRow []string

// Field returns the field at position i and whether the row has it.
func (r LogRow) Field(i int) (string, bool) {
	if i < 0 || i >= len(r) {
		return "", false
	}
	return r[i], true
}

// Entry is a classified log row: a literal-redacted statement together with
// the session and transaction it ran in.
// After transaction tagging, Statement may carry the "T:" prefix.
type Entry struct {
	Statement   string `json:"statement"`
	Session     string `json:"session"`
	Transaction string `json:"transaction"`
}
