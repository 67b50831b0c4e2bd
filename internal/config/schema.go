// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"bytes"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/meteo-dpc/arkive/pkg/log"
)

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "arkive configuration",
  "type": "object",
  "properties": {
    "log-level": {
      "type": "string",
      "enum": ["debug", "info", "warn", "err", "crit"]
    },
    "log-date": { "type": "boolean" },
    "datasets": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "aliases": { "type": "string" },
    "validators": {
      "type": "object",
      "additionalProperties": { "type": "string", "minLength": 1 }
    },
    "maintenance": {
      "type": "object",
      "properties": {
        "enable": { "type": "boolean" },
        "check-hour": { "type": "integer", "minimum": 0, "maximum": 23 },
        "repack-hour": { "type": "integer", "minimum": 0, "maximum": 23 }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", bytes.NewReader([]byte(configSchema))); err != nil {
		log.Fatalf("cannot load config schema: %v", err)
	}
	var err error
	compiledSchema, err = c.Compile("config.schema.json")
	if err != nil {
		log.Fatalf("cannot compile config schema: %v", err)
	}
}

// Validate checks a raw configuration document against the schema.
func Validate(r io.Reader) error {
	var doc interface{}
	if err := decodeJSON(r, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
