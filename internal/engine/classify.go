package engine

import (
	"regexp"
	"strings"

	"github.com/coffersTech/nanoflow/internal/model"
)

// Markers that identify a statement-bearing log message.
const (
	markerStatement = "statement: "
	markerExecute   = "execute"
)

var (
	// statementPrefix matches the log preamble in front of the SQL text.
	// Only the first match is stripped.
	statementPrefix = regexp.MustCompile(`.*statement: |.*execute.*?: `)

	// literalPattern matches numbered placeholder groups, quoted strings and
	// bare numbers that follow a space, '=', '(' or ','. The separator in
	// front of a bare number is part of the match and is put back on
	// replacement.
	literalPattern = regexp.MustCompile(`\( \$\d+ \)|'.*?'|[ =(,]\d+`)
)

// ClassifyStats counts what the classifier did with its input.
type ClassifyStats struct {
	Rows             int `json:"rows"`
	MissingStatement int `json:"missing_statement"`
	Excluded         int `json:"excluded"`
	NotStatement     int `json:"not_statement"`
	Entries          int `json:"entries"`
}

// Classifier filters raw log rows down to statements and canonicalizes them.
type Classifier struct {
	excluded []string
	stats    ClassifyStats
}

// NewClassifier creates a classifier that drops every row whose message
// contains one of the excluded phrases. Empty phrases are ignored.
func NewClassifier(excludedPhrases []string) *Classifier {
	excluded := make([]string, 0, len(excludedPhrases))
	for _, p := range excludedPhrases {
		if p != "" {
			excluded = append(excluded, p)
		}
	}
	return &Classifier{excluded: excluded}
}

// Classify appends an entry to table for every qualifying row, in row order.
func (c *Classifier) Classify(rows []model.LogRow, table *EntryTable) {
	for _, row := range rows {
		c.stats.Rows++

		msg, ok := row.Field(model.ColStatement)
		if !ok {
			c.stats.MissingStatement++
			continue
		}
		if c.isExcluded(msg) {
			c.stats.Excluded++
			continue
		}
		if !IsStatement(msg) {
			c.stats.NotStatement++
			continue
		}

		session, _ := row.Field(model.ColSession)
		tx, _ := row.Field(model.ColTransaction)
		table.Append(model.Entry{
			Statement:   NormalizeStatement(msg),
			Session:     session,
			Transaction: tx,
		})
		c.stats.Entries++
	}
}

// Stats returns the counters accumulated by Classify.
func (c *Classifier) Stats() ClassifyStats {
	return c.stats
}

func (c *Classifier) isExcluded(msg string) bool {
	for _, p := range c.excluded {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsStatement reports whether a log message carries an SQL statement.
func IsStatement(msg string) bool {
	return strings.Contains(msg, markerStatement) || strings.Contains(msg, markerExecute)
}

// NormalizeStatement strips the log preamble from msg and replaces literal
// values with '?'.
func NormalizeStatement(msg string) string {
	if loc := statementPrefix.FindStringIndex(msg); loc != nil {
		msg = msg[:loc[0]] + msg[loc[1]:]
	}
	return literalPattern.ReplaceAllStringFunc(msg, redactLiteral)
}

func redactLiteral(m string) string {
	switch {
	case m[0] == '\'', strings.HasPrefix(m, "( $"):
		return "?"
	default:
		// bare number: keep the separator it was matched with
		return m[:1] + "?"
	}
}
