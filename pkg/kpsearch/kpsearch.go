// Copyright 2026 The Kdbcodec Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kpsearch finds entries in a password database. Matching is
// case- and diacritic-insensitive, and every word of the query must
// occur in a matched entry.
package kpsearch

import (
	"unicode"

	"golang.org/x/text/language"
	textsearch "golang.org/x/text/search"

	"zombiezen.com/go/kdbcodec/pkg/kdb"
)

// A Query is a compiled search query.
type Query struct {
	pats []*textsearch.Pattern
}

// Parse compiles a free-text query. It returns nil if the query
// contains no words.
func Parse(query string) *Query {
	words := splitWords(query)
	if len(words) == 0 {
		return nil
	}
	m := textsearch.New(language.Und, textsearch.Loose)
	q := &Query{pats: make([]*textsearch.Pattern, len(words))}
	for i := range words {
		q.pats[i] = m.CompileString(words[i])
	}
	return q
}

func splitWords(query string) []string {
	var words []string
	start := -1
	for i, r := range query {
		space := unicode.IsSpace(r)
		if space && start != -1 {
			words = append(words, query[start:i])
			start = -1
		} else if !space && start == -1 {
			start = i
		}
	}
	if start != -1 {
		words = append(words, query[start:])
	}
	return words
}

// Match reports whether every word of the query occurs in s.
func (q *Query) Match(s string) bool {
	if q == nil || len(q.pats) == 0 {
		return false
	}
	for _, pat := range q.pats {
		if start, _ := pat.IndexString(s); start == -1 {
			return false
		}
	}
	return true
}

// MatchEntry reports whether the query matches any of the entry's
// visible text fields. Passwords are never searched.
func (q *Query) MatchEntry(e kdb.Entry) bool {
	if q == nil {
		return false
	}
	return q.Match(e.Title()) || q.Match(e.Username()) || q.Match(e.URL()) || q.Match(e.Notes())
}

// Search returns the database's entries matching q, in database order.
func Search(db kdb.Database, q *Query) []kdb.Entry {
	if q == nil {
		return nil
	}
	var results []kdb.Entry
	for _, e := range db.Entries() {
		if q.MatchEntry(e) {
			results = append(results, e)
		}
	}
	return results
}
