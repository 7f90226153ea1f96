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

package kpsearch

import (
	"io"
	"testing"
	"time"

	"zombiezen.com/go/kdbcodec/pkg/kdb"
	"zombiezen.com/go/kdbcodec/pkg/progress"
)

func TestParseEmpty(t *testing.T) {
	for _, query := range []string{"", "   ", "\t\n"} {
		if q := Parse(query); q != nil {
			t.Errorf("Parse(%q) = %v; want nil", query, q)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		query string
		s     string
		want  bool
	}{
		{"bank", "My Bank Account", true},
		{"bank", "groceries", false},
		{"BANK", "my bank", true},
		{"cafe", "Café Login", true},
		{"my bank", "My Bank Account", true},
		{"my bank", "bank only", false},
		{"bank", "", false},
	}
	for _, test := range tests {
		q := Parse(test.query)
		if got := q.Match(test.s); got != test.want {
			t.Errorf("Parse(%q).Match(%q) = %t; want %t", test.query, test.s, got, test.want)
		}
	}
}

func TestMatchNil(t *testing.T) {
	var q *Query
	if q.Match("anything") {
		t.Error("nil query matched")
	}
}

type fakeEntry struct {
	title, username, url, notes string
}

func (e fakeEntry) ID() string       { return e.title }
func (e fakeEntry) Title() string    { return e.title }
func (e fakeEntry) Username() string { return e.username }
func (e fakeEntry) Password() string { return "" }
func (e fakeEntry) URL() string      { return e.url }
func (e fakeEntry) Notes() string    { return e.notes }

func (e fakeEntry) Times() (created, modified time.Time) { return }

type fakeDatabase struct {
	entries []kdb.Entry
}

func (d fakeDatabase) Format() kdb.Format                              { return kdb.FormatKDBX }
func (d fakeDatabase) Root() kdb.Group                                 { return nil }
func (d fakeDatabase) Entries() []kdb.Entry                            { return d.entries }
func (d fakeDatabase) Save(w io.Writer, prog *progress.Progress) error { return nil }
func (d fakeDatabase) Erase()                                          {}

func TestSearch(t *testing.T) {
	db := fakeDatabase{entries: []kdb.Entry{
		fakeEntry{title: "Bank of Gophers", username: "gopher"},
		fakeEntry{title: "Mail", username: "gopher", notes: "backup bank codes"},
		fakeEntry{title: "Café", url: "https://cafe.example"},
	}}

	tests := []struct {
		query string
		want  []string
	}{
		{"bank", []string{"Bank of Gophers", "Mail"}},
		{"gopher bank", []string{"Bank of Gophers"}},
		{"cafe", []string{"Café"}},
		{"nothing", nil},
		{"", nil},
	}
	for _, test := range tests {
		var got []string
		for _, e := range Search(db, Parse(test.query)) {
			got = append(got, e.Title())
		}
		if len(got) != len(test.want) {
			t.Errorf("Search(%q) = %v; want %v", test.query, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("Search(%q) = %v; want %v", test.query, got, test.want)
				break
			}
		}
	}
}
