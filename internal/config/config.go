// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the program configuration: which dataset
// directories to serve, validators, aliases and logging options.
// Per-dataset configuration stays with each dataset.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/meteo-dpc/arkive/pkg/log"
)

// Maintenance configures the periodic check/repack service.
type Maintenance struct {
	Enable     bool `json:"enable"`
	CheckHour  int  `json:"check-hour"`
	RepackHour int  `json:"repack-hour"`
}

type ProgramConfig struct {
	LogLevel string `json:"log-level"`
	LogDate  bool   `json:"log-date"`

	// Dataset directories, each holding its own config file.
	Datasets []string `json:"datasets"`

	// Matcher alias file (ini format).
	Aliases string `json:"aliases"`

	// Dispatch validators: name to expression.
	Validators map[string]string `json:"validators"`

	Maintenance Maintenance `json:"maintenance"`
}

var Keys ProgramConfig = ProgramConfig{
	LogLevel: "info",
	Maintenance: Maintenance{
		CheckHour:  3,
		RepackHour: 4,
	},
}

func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	return dec.Decode(v)
}

// Init loads and validates the configuration file. A missing file
// leaves the defaults in place.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("reading config %s: %v", flagConfigFile, err)
		}
		return
	}
	if err := Validate(bytes.NewReader(raw)); err != nil {
		log.Fatalf("%v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatalf("parsing config %s: %v", flagConfigFile, err)
	}
}
