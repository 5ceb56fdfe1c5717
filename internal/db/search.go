package db

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SearchResult is a message matching a search, with a highlighted excerpt
type SearchResult struct {
	Message
	Snippet string `json:"snippet"`
}

// SearchFilter narrows a search. Empty fields are ignored.
type SearchFilter struct {
	Query          string
	Sender         string
	HasAttachments bool
	Limit          int
	Offset         int
}

// ftsQuery turns free text into an FTS5 prefix query: "john doe" -> "john"* "doe"*.
// Punctuation separates terms so FTS5 syntax in user input stays inert.
func ftsQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	fuzzyTerms := make([]string, len(terms))
	for i, term := range terms {
		fuzzyTerms[i] = `"` + term + `"*`
	}
	return strings.Join(fuzzyTerms, " ")
}

// SearchMessages performs a full-text search with optional filters. Without a
// query it lists matching messages in indexing order.
func (db *DB) SearchMessages(f SearchFilter) ([]*SearchResult, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var conditions []string
	var args []interface{}

	query := ftsQuery(f.Query)
	if query != "" {
		conditions = append(conditions, "messages_fts MATCH ?")
		args = append(args, query)
	}

	if f.Sender != "" {
		conditions = append(conditions, "m.sender LIKE ?")
		args = append(args, "%"+f.Sender+"%")
	}

	if f.HasAttachments {
		conditions = append(conditions, "m.attachment_count > 0")
	}

	sqlQuery := `
		SELECT
			m.id, m.source, m.subject, m.sender, m.to_addrs, m.cc, m.bcc,
			m.date, m.body, m.attachment_count, m.indexed_at
	`
	if query != "" {
		sqlQuery += `, snippet(messages_fts, 3, '<mark>', '</mark>', '...', 32) as snippet
		FROM messages m
		JOIN messages_fts ON m.id = messages_fts.rowid
		`
	} else {
		sqlQuery += `, '' as snippet
		FROM messages m
		`
	}

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	if query != "" {
		sqlQuery += " ORDER BY rank"
	} else {
		sqlQuery += " ORDER BY m.id ASC"
	}

	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	results := make([]*SearchResult, 0)
	for rows.Next() {
		result := &SearchResult{}
		err := rows.Scan(
			&result.ID, &result.Source, &result.Subject, &result.Sender, &result.To, &result.CC, &result.BCC,
			&result.Date, &result.Body, &result.AttachmentCount, &result.IndexedAt,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// Generate snippet if not from FTS5
		if result.Snippet == "" {
			result.Snippet = truncateText(result.Body, 200)
		}
		result.Body = ""

		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// truncateText truncates text to maxLen bytes without splitting a rune
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
