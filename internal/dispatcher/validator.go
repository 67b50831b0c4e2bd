// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatcher

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// ExprValidator vets messages with a boolean expression over a flat
// view of the metadata, e.g.
//
//	format in ["grib1", "grib2"] && origin != ""
//
// Fields exposed: format, origin, product, level, timerange, area,
// proddef, run, task, quantity (canonical text forms, "" when
// absent), reftime (RFC 3339) and size (payload bytes).
type ExprValidator struct {
	name    string
	source  string
	program *vm.Program
}

// NewExprValidator compiles a validator expression.
func NewExprValidator(name, source string) (*ExprValidator, error) {
	program, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling validator %s: %w", name, err)
	}
	return &ExprValidator{name: name, source: source, program: program}, nil
}

func (v *ExprValidator) Name() string { return v.name }

func environment(md *types.Metadata) map[string]interface{} {
	env := map[string]interface{}{
		"format":  "",
		"reftime": "",
		"size":    0,
	}
	for _, code := range []types.Code{
		types.CodeOrigin, types.CodeProduct, types.CodeLevel,
		types.CodeTimerange, types.CodeArea, types.CodeProddef,
		types.CodeRun, types.CodeTask, types.CodeQuantity,
	} {
		env[code.String()] = ""
		if it := md.Get(code); it != nil {
			env[code.String()] = it.String()
		}
	}
	if rt, ok := md.Reftime(); ok {
		env["reftime"] = rt.Begin.String()
	}
	if md.HasSource() {
		env["format"] = md.Source().Format
		env["size"] = int(md.Source().Size)
	}
	return env
}

func (v *ExprValidator) Validate(md *types.Metadata) error {
	out, err := expr.Run(v.program, environment(md))
	if err != nil {
		return fmt.Errorf("running validator %s: %w", v.name, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("message rejected by %q", v.source)
	}
	return nil
}
