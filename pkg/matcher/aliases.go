// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package matcher

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// AliasDatabase maps per-kind alias names to OR expressions. Aliases
// are substituted at parse time; the unparsed form keeps the alias
// name so expressions round-trip.
type AliasDatabase struct {
	mu      sync.RWMutex
	byKind  map[types.Code]map[string]*OR
	sources map[types.Code]map[string]string
}

var globalAliases = newAliasDatabase()

func newAliasDatabase() *AliasDatabase {
	return &AliasDatabase{
		byKind:  make(map[types.Code]map[string]*OR),
		sources: make(map[types.Code]map[string]string),
	}
}

func (db *AliasDatabase) get(code types.Code, name string) *OR {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.byKind[code][name]
}

func (db *AliasDatabase) add(code types.Code, name, expansion string) error {
	or, err := parseOR(code, expansion)
	if err != nil {
		return fmt.Errorf("alias %s/%s: %w", code, name, err)
	}
	or.unparsed = "" // aliases always print expanded
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.byKind[code] == nil {
		db.byKind[code] = make(map[string]*OR)
		db.sources[code] = make(map[string]string)
	}
	db.byKind[code][strings.ToLower(name)] = or
	db.sources[code][strings.ToLower(name)] = expansion
	return nil
}

// AddAlias registers one alias in the global database.
func AddAlias(kind, name, expansion string) error {
	code, err := types.ParseCodeName(kind)
	if err != nil {
		return err
	}
	return globalAliases.add(code, name, expansion)
}

// LoadAliases reads an ini-style alias file:
//
//	[origin]
//	arpa = GRIB1,200 or GRIB1,80
//	ecmwf = GRIB1,98
//
// Section names are metadata kinds; entries are alias = expression.
func LoadAliases(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var section string
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return fmt.Errorf("aliases line %d: missing '='", lineno)
		}
		if section == "" {
			return fmt.Errorf("aliases line %d: entry outside of a [section]", lineno)
		}
		if err := AddAlias(section, strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:])); err != nil {
			return fmt.Errorf("aliases line %d: %w", lineno, err)
		}
	}
	return scanner.Err()
}

// ResetAliases clears the global database. Used by tests.
func ResetAliases() {
	globalAliases.mu.Lock()
	defer globalAliases.mu.Unlock()
	globalAliases.byKind = make(map[types.Code]map[string]*OR)
	globalAliases.sources = make(map[types.Code]map[string]string)
}

// SerialiseAliases writes the global database back in its ini form.
func SerialiseAliases(w io.Writer) error {
	globalAliases.mu.RLock()
	defer globalAliases.mu.RUnlock()
	for _, code := range []types.Code{
		types.CodeOrigin, types.CodeProduct, types.CodeLevel,
		types.CodeTimerange, types.CodeArea, types.CodeProddef,
		types.CodeQuantity, types.CodeTask, types.CodeRun, types.CodeReftime,
	} {
		entries := globalAliases.sources[code]
		if len(entries) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "[%s]\n", code); err != nil {
			return err
		}
		for name, src := range entries {
			if _, err := fmt.Fprintf(w, "%s = %s\n", name, src); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
