// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"strings"
	"testing"
)

func TestValidateAcceptsGoodConfig(t *testing.T) {
	raw := `{
  "log-level": "debug",
  "datasets": ["/srv/arkive/test200", "/srv/arkive/error"],
  "aliases": "/etc/arkive/aliases.conf",
  "validators": { "has-origin": "origin != \"\"" },
  "maintenance": { "enable": true, "check-hour": 3, "repack-hour": 4 }
}`
	if err := Validate(strings.NewReader(raw)); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	for name, raw := range map[string]string{
		"bad level":    `{"log-level": "loud"}`,
		"bad datasets": `{"datasets": "not-a-list"}`,
		"unknown key":  `{"surprise": 1}`,
		"bad hour":     `{"maintenance": {"check-hour": 99}}`,
	} {
		if err := Validate(strings.NewReader(raw)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
