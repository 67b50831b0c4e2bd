// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package matcher parses and evaluates filter expressions over
// metadata item sets.
//
// An expression is a top-level AND of kind:pattern clauses separated
// by ';' or newlines; each clause is an OR of style-typed subpatterns:
//
//	origin:GRIB1,200 or GRIB1,98; reftime:>=2007-01-01,<2008-01-01
//
// Aliases defined in the global alias database are substituted at
// parse time; the unparsed form is kept for round-tripping.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// implementation is one style-typed subpattern of a clause. MatchItem
// is only called with items of the clause's kind.
type implementation interface {
	Code() types.Code
	MatchItem(types.Item) bool
	String() string
}

type parseFunc func(pattern string) (implementation, error)

var parsers = map[types.Code]parseFunc{
	types.CodeOrigin:    parseMatchOrigin,
	types.CodeProduct:   parseMatchProduct,
	types.CodeLevel:     parseMatchLevel,
	types.CodeTimerange: parseMatchTimerange,
	types.CodeArea:      parseMatchArea,
	types.CodeProddef:   parseMatchProddef,
	types.CodeQuantity:  parseMatchQuantity,
	types.CodeTask:      parseMatchTask,
	types.CodeRun:       parseMatchRun,
	types.CodeReftime:   parseMatchReftime,
}

var orSplit = regexp.MustCompile(`(?i)[ \t]+or[ \t]+`)

// OR is one clause: alternatives over a single kind.
type OR struct {
	code       types.Code
	unparsed   string
	components []implementation
}

func parseOR(code types.Code, pattern string) (*OR, error) {
	parse, ok := parsers[code]
	if !ok {
		return nil, fmt.Errorf("cannot match on %s", code)
	}
	res := &OR{code: code, unparsed: pattern}
	for _, alt := range orSplit.Split(pattern, -1) {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if aliased := globalAliases.get(code, strings.ToLower(alt)); aliased != nil {
			res.components = append(res.components, aliased.components...)
			continue
		}
		impl, err := parse(alt)
		if err != nil {
			return nil, err
		}
		res.components = append(res.components, impl)
	}
	return res, nil
}

func (o *OR) MatchItem(it types.Item) bool {
	if len(o.components) == 0 {
		return true
	}
	for _, c := range o.components {
		if c.MatchItem(it) {
			return true
		}
	}
	return false
}

func (o *OR) String() string {
	if o.unparsed != "" {
		return o.unparsed
	}
	return o.Expanded()
}

// Expanded returns the alias-free form of the clause.
func (o *OR) Expanded() string {
	parts := make([]string, 0, len(o.components))
	for _, c := range o.components {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " or ")
}

// Matcher is a parsed filter expression. The zero value (and the one
// parsed from an empty string) matches everything.
type Matcher struct {
	clauses map[types.Code]*OR
}

// Parse builds a matcher, expanding aliases from the global database.
func Parse(expr string) (*Matcher, error) {
	m := &Matcher{clauses: make(map[types.Code]*OR)}
	for _, clause := range strings.FieldsFunc(expr, func(r rune) bool { return r == ';' || r == '\n' }) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		colon := strings.IndexByte(clause, ':')
		if colon < 0 {
			return nil, fmt.Errorf("cannot parse matcher clause %q: missing ':'", clause)
		}
		code, err := types.ParseCodeName(clause[:colon])
		if err != nil {
			return nil, fmt.Errorf("cannot parse matcher clause %q: %w", clause, err)
		}
		if _, dup := m.clauses[code]; dup {
			return nil, fmt.Errorf("cannot parse matcher: duplicate clause for %s", code)
		}
		or, err := parseOR(code, strings.TrimSpace(clause[colon+1:]))
		if err != nil {
			return nil, fmt.Errorf("cannot parse matcher clause %q: %w", clause, err)
		}
		m.clauses[code] = or
	}
	return m, nil
}

// MustParse is Parse for expressions known valid at compile time.
func MustParse(expr string) *Matcher {
	m, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Universal returns the matcher that matches everything.
func Universal() *Matcher {
	return &Matcher{clauses: make(map[types.Code]*OR)}
}

func (m *Matcher) IsUniversal() bool {
	return m == nil || len(m.clauses) == 0
}

// Match reports whether the item set satisfies every clause. A clause
// whose kind is absent from the item set filters the set out.
func (m *Matcher) Match(s *types.ItemSet) bool {
	if m == nil {
		return true
	}
	for code, or := range m.clauses {
		it := s.Get(code)
		if it == nil || !or.MatchItem(it) {
			return false
		}
	}
	return true
}

// Clause returns the OR for one kind, or nil.
func (m *Matcher) Clause(code types.Code) *OR {
	if m == nil {
		return nil
	}
	return m.clauses[code]
}

// Split separates the clauses in keep from the rest, for engines that
// push some kinds down to an index and evaluate the others in memory.
func (m *Matcher) Split(keep ...types.Code) (selected, rest *Matcher) {
	selected, rest = Universal(), Universal()
	if m == nil {
		return
	}
	wanted := make(map[types.Code]bool, len(keep))
	for _, c := range keep {
		wanted[c] = true
	}
	for code, or := range m.clauses {
		if wanted[code] {
			selected.clauses[code] = or
		} else {
			rest.clauses[code] = or
		}
	}
	return
}

func (m *Matcher) sortedCodes() []types.Code {
	codes := make([]types.Code, 0, len(m.clauses))
	for code := range m.clauses {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func (m *Matcher) String() string {
	if m.IsUniversal() {
		return ""
	}
	parts := make([]string, 0, len(m.clauses))
	for _, code := range m.sortedCodes() {
		parts = append(parts, fmt.Sprintf("%s:%s", code, m.clauses[code]))
	}
	return strings.Join(parts, "; ")
}

// Expanded returns the round-trippable alias-free text form.
func (m *Matcher) Expanded() string {
	if m.IsUniversal() {
		return ""
	}
	parts := make([]string, 0, len(m.clauses))
	for _, code := range m.sortedCodes() {
		parts = append(parts, fmt.Sprintf("%s:%s", code, m.clauses[code].Expanded()))
	}
	return strings.Join(parts, "; ")
}

// RestrictDateRange narrows an open [begin, end) interval by the
// reftime clause. It returns false when the constraints are
// unsatisfiable within the interval.
func (m *Matcher) RestrictDateRange(begin, end *types.Time) bool {
	or := m.Clause(types.CodeReftime)
	if or == nil {
		return true
	}
	for _, c := range or.components {
		rt := c.(*MatchReftime)
		if !rt.restrictDateRange(begin, end) {
			return false
		}
	}
	return true
}

// ReftimeSQL renders the reftime clause as an SQL fragment over
// column, or "" when there is no reftime clause.
func (m *Matcher) ReftimeSQL(column string) string {
	or := m.Clause(types.CodeReftime)
	if or == nil || len(or.components) == 0 {
		return ""
	}
	if len(or.components) == 1 {
		return or.components[0].(*MatchReftime).sql(column)
	}
	parts := make([]string, 0, len(or.components))
	for _, c := range or.components {
		parts = append(parts, c.(*MatchReftime).sql(column))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

/* shared parsing helpers */

// splitPattern splits a subpattern on commas, keeping the leading
// style token separate even when followed by ':' (value bag syntax).
func splitPattern(pattern string) (style string, args []string) {
	pattern = strings.TrimSpace(pattern)
	sep := strings.IndexAny(pattern, ",:")
	if sep < 0 {
		return pattern, nil
	}
	style = pattern[:sep]
	rest := pattern[sep+1:]
	if pattern[sep] == ':' {
		// Style followed by a value bag: the whole rest is one arg.
		return style, []string{rest}
	}
	for _, a := range strings.Split(rest, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return style, args
}

// optInt parses args[i] as an optional integer: absent or empty
// fields act as wildcards.
func optInt(args []string, i int) (value int, present bool, err error) {
	if i >= len(args) || args[i] == "" {
		return 0, false, nil
	}
	_, err = fmt.Sscanf(args[i], "%d", &value)
	if err != nil {
		return 0, false, fmt.Errorf("cannot parse number %q", args[i])
	}
	return value, true, nil
}

func matchOptInt(want int, present bool, got int) bool {
	return !present || want == got
}
