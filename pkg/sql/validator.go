// Package sql guards SQL fragments taken from flow messages.
package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates a fragment would terminate the generated
// statement and start another.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// CheckSingleStatement rejects fragments containing a semicolon outside
// string literals. A trailing semicolon is tolerated.
func CheckSingleStatement(fragment string) error {
	if hasSemicolonOutsideStrings(stripTrailingSemicolon(strings.TrimSpace(fragment))) {
		return ErrMultipleStatements
	}
	return nil
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters the literal.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
