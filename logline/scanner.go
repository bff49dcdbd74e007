// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

// Package logline turns raw kernel firewall log lines into structured events.
package logline

// MatchKind tells how a keyword scan ended.
type MatchKind int

const (
	// NotFound means the keyword does not occur at or after the start offset.
	NotFound MatchKind = iota
	// FoundEmpty means the keyword occurs but is directly followed by a
	// delimiter or the end of the line.
	FoundEmpty
	// Found means the keyword occurs and is followed by a non-empty value.
	Found
)

// String returns a short name for the match kind.
func (k MatchKind) String() string {
	switch k {
	case FoundEmpty:
		return "found-empty"
	case Found:
		return "found"
	default:
		return "not-found"
	}
}

// Match is the result of a keyword scan. Start and End describe the
// half-open span of the value that follows the keyword; KeywordStart is
// where the keyword itself begins. All three are -1 for NotFound.
type Match struct {
	Kind         MatchKind
	KeywordStart int
	Start        int
	End          int
}

var notFound = Match{Kind: NotFound, KeywordStart: -1, Start: -1, End: -1}

// Value returns the matched value, or "" when nothing was found.
func (m Match) Value(line string) string {
	if m.Kind != Found {
		return ""
	}
	return line[m.Start:m.End]
}

// scanState is the state of the keyword automaton.
type scanState int

const (
	seeking scanState = iota
	matching
	consuming
)

// Scan finds the first occurrence of keyword at or after from that starts a
// token (beginning of line or preceded by a space), and returns the span of
// the run of non-space bytes immediately following it.
//
// For keywords ending in '=' the span is the field value. For bare flag
// keywords such as "SYN" a FoundEmpty result means the keyword is a whole
// token, while Found means it is only the prefix of a longer token (for
// example "URG" inside "URGP=0").
func Scan(line string, from int, keyword string) Match {
	if keyword == "" || from < 0 || from >= len(line) {
		return notFound
	}

	state := seeking
	kwStart, k, valStart := -1, 0, -1

	for i := from; i < len(line); i++ {
		c := line[i]
		switch state {
		case seeking:
			if c == keyword[0] && (i == 0 || line[i-1] == ' ') {
				kwStart, k = i, 1
				if k == len(keyword) {
					state, valStart = consuming, i+1
				} else {
					state = matching
				}
			}
		case matching:
			if c == keyword[k] {
				k++
				if k == len(keyword) {
					state, valStart = consuming, i+1
				}
				continue
			}
			// Partial match broke; resume seeking right after where it began.
			state, k = seeking, 0
			i = kwStart
		case consuming:
			if c == ' ' {
				return spanMatch(kwStart, valStart, i)
			}
		}
	}

	if state == consuming {
		return spanMatch(kwStart, valStart, len(line))
	}
	return notFound
}

func spanMatch(kwStart, start, end int) Match {
	kind := Found
	if start >= end {
		kind, end = FoundEmpty, start
	}
	return Match{Kind: kind, KeywordStart: kwStart, Start: start, End: end}
}

// HasToken reports whether keyword occurs as a whole space-delimited token
// at or after from. Occurrences that are prefixes of longer tokens are
// skipped, so HasToken(line, 0, "URG") is false for "... URGP=0".
func HasToken(line string, from int, keyword string) bool {
	for {
		m := Scan(line, from, keyword)
		switch m.Kind {
		case NotFound:
			return false
		case FoundEmpty:
			return true
		}
		from = m.End
	}
}
