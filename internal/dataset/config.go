// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Config is the read-only configuration of one dataset, loaded from
// its key=value config file.
type Config struct {
	Name string
	Type string // ondisk2 | iseg | simple | outbound | empty | remote | file
	Path string
	Step Step

	// Filter decides dispatch membership.
	Filter *matcher.Matcher

	// Indexed metadata kinds, and the combination that must be
	// unique within the dataset.
	Index  []types.Code
	Unique []types.Code

	// Default replace behaviour for acquires ("always", "never",
	// "higher_usn" or empty).
	Replace string

	// Retention, in days since the newest datum of a segment. Zero
	// disables the policy.
	ArchiveAge int
	DeleteAge  int

	// ForceSqlite selects the sqlite manifest for simple datasets.
	ForceSqlite bool
}

// ParseConfig reads a key=value dataset configuration.
func ParseConfig(name, path string, r io.Reader) (*Config, error) {
	cfg := &Config{Name: name, Path: path, Type: "ondisk2", Step: StepDaily}

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("%s: line %d: missing '='", name, lineno)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		var err error
		switch key {
		case "name":
			cfg.Name = value
		case "type":
			cfg.Type = value
		case "path":
			cfg.Path = value
		case "step":
			cfg.Step, err = ParseStep(value)
		case "filter":
			cfg.Filter, err = matcher.Parse(value)
		case "index":
			cfg.Index, err = parseCodeList(value)
		case "unique":
			cfg.Unique, err = parseCodeList(value)
		case "replace":
			switch strings.ToLower(value) {
			case "yes", "true", "always", "1":
				cfg.Replace = "always"
			case "no", "false", "never", "0":
				cfg.Replace = "never"
			case "usn", "higher_usn":
				cfg.Replace = "higher_usn"
			default:
				err = fmt.Errorf("unsupported replace value %q", value)
			}
		case "archive age":
			cfg.ArchiveAge, err = strconv.Atoi(value)
		case "delete age":
			cfg.DeleteAge, err = strconv.Atoi(value)
		case "force sqlite":
			cfg.ForceSqlite = value == "yes" || value == "true" || value == "1"
		default:
			// Unknown keys are carried by older configs; ignore them.
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %s: %w", name, lineno, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads <dir>/config, naming the dataset after the
// directory.
func LoadConfig(dir string) (*Config, error) {
	f, err := os.Open(filepath.Join(dir, "config"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConfig(filepath.Base(dir), dir, f)
}

// Write serialises the config back into its key=value form.
func (cfg *Config) Write(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "type = %s\n", cfg.Type)
	fmt.Fprintf(&sb, "step = %s\n", cfg.Step)
	if !cfg.Filter.IsUniversal() {
		fmt.Fprintf(&sb, "filter = %s\n", cfg.Filter)
	}
	if len(cfg.Index) > 0 {
		fmt.Fprintf(&sb, "index = %s\n", formatCodeList(cfg.Index))
	}
	if len(cfg.Unique) > 0 {
		fmt.Fprintf(&sb, "unique = %s\n", formatCodeList(cfg.Unique))
	}
	if cfg.Replace != "" {
		fmt.Fprintf(&sb, "replace = %s\n", cfg.Replace)
	}
	if cfg.ArchiveAge > 0 {
		fmt.Fprintf(&sb, "archive age = %d\n", cfg.ArchiveAge)
	}
	if cfg.DeleteAge > 0 {
		fmt.Fprintf(&sb, "delete age = %d\n", cfg.DeleteAge)
	}
	if cfg.ForceSqlite {
		fmt.Fprintf(&sb, "force sqlite = yes\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func parseCodeList(value string) ([]types.Code, error) {
	var out []types.Code
	for _, name := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		code, err := types.ParseCodeName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

func formatCodeList(codes []types.Code) string {
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}
