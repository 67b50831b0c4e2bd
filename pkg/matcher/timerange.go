// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// MatchTimerange matches forecast step and statistical processing.
// Values carry units and are compared after normalisation, so
// "GRIB1,0,60m" matches a timerange stored as one hour.
type MatchTimerange struct {
	style types.TimerangeStyle

	// GRIB1/GRIB2: type plus optional p1/p2.
	typ     int
	hasType bool
	p1      int64
	p1M     bool
	hasP1   bool
	p2      int64
	p2M     bool
	hasP2   bool

	// Timedef: step, optional stat type, optional stat length.
	step     int64
	stepM    bool
	hasStep  bool
	statType int
	hasStat  bool
	statLen  int64
	statLenM bool
	hasSLen  bool

	// BUFR: forecast offset.
	value    int64
	valueM   bool
	hasValue bool
}

// parseNormalised parses "72h"-style values into a normalised
// magnitude; a bare number is taken as hours for GRIB compatibility.
func parseNormalised(s string) (int64, bool, error) {
	if s == "" {
		return 0, false, fmt.Errorf("empty time value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		norm, months, _ := types.UnitHour.Normalise(n)
		return norm, months, nil
	}
	n, unit, err := types.ParseTimedefValue(s)
	if err != nil {
		return 0, false, err
	}
	norm, months, ok := unit.Normalise(n)
	if !ok {
		return 0, false, fmt.Errorf("cannot normalise time value %q", s)
	}
	return norm, months, nil
}

func parseMatchTimerange(pattern string) (implementation, error) {
	style, args := splitPattern(pattern)
	m := &MatchTimerange{}
	var err error
	if m.style, err = types.ParseTimerangeStyle(style); err != nil {
		return nil, err
	}

	switch m.style {
	case types.TimerangeGRIB1, types.TimerangeGRIB2:
		if m.typ, m.hasType, err = optInt(args, 0); err != nil {
			return nil, err
		}
		if len(args) > 1 && args[1] != "" {
			if m.p1, m.p1M, err = parseNormalised(args[1]); err != nil {
				return nil, err
			}
			m.hasP1 = true
		}
		if len(args) > 2 && args[2] != "" {
			if m.p2, m.p2M, err = parseNormalised(args[2]); err != nil {
				return nil, err
			}
			m.hasP2 = true
		}
	case types.TimerangeTimedef:
		if len(args) > 0 && args[0] != "" && args[0] != "-" {
			if m.step, m.stepM, err = parseNormalised(args[0]); err != nil {
				return nil, err
			}
			m.hasStep = true
		}
		if m.statType, m.hasStat, err = optInt(args, 1); err != nil {
			return nil, err
		}
		if len(args) > 2 && args[2] != "" {
			if m.statLen, m.statLenM, err = parseNormalised(args[2]); err != nil {
				return nil, err
			}
			m.hasSLen = true
		}
	case types.TimerangeBUFR:
		if len(args) > 0 && args[0] != "" {
			if m.value, m.valueM, err = parseNormalised(args[0]); err != nil {
				return nil, err
			}
			m.hasValue = true
		}
	}
	return m, nil
}

func (*MatchTimerange) Code() types.Code { return types.CodeTimerange }

func matchNorm(want int64, wantM, has bool, got int64, gotM bool) bool {
	if !has {
		return true
	}
	return wantM == gotM && want == got
}

func (m *MatchTimerange) MatchItem(it types.Item) bool {
	tr, ok := it.(types.Timerange)
	if !ok || tr.Style != m.style {
		return false
	}
	switch m.style {
	case types.TimerangeGRIB1:
		typ, p1, p2, months := tr.GRIB1Normalised()
		return matchOptInt(m.typ, m.hasType, typ) &&
			matchNorm(m.p1, m.p1M, m.hasP1, p1, months) &&
			matchNorm(m.p2, m.p2M, m.hasP2, p2, months)
	case types.TimerangeGRIB2:
		p1n, p1m, _ := tr.Unit.Normalise(tr.P1)
		p2n, p2m, _ := tr.Unit.Normalise(tr.P2)
		return matchOptInt(m.typ, m.hasType, tr.Type) &&
			matchNorm(m.p1, m.p1M, m.hasP1, p1n, p1m) &&
			matchNorm(m.p2, m.p2M, m.hasP2, p2n, p2m)
	case types.TimerangeTimedef:
		stepN, stepM, _ := tr.StepUnit.Normalise(tr.StepLen)
		if !matchNorm(m.step, m.stepM, m.hasStep, stepN, stepM) {
			return false
		}
		if m.hasStat {
			if tr.StatType != m.statType {
				return false
			}
			if m.hasSLen {
				statN, statM, _ := tr.StatUnit.Normalise(tr.StatLen)
				if !matchNorm(m.statLen, m.statLenM, m.hasSLen, statN, statM) {
					return false
				}
			}
		}
		return true
	case types.TimerangeBUFR:
		vn, vm, _ := tr.Unit.Normalise(tr.Value)
		return matchNorm(m.value, m.valueM, m.hasValue, vn, vm)
	}
	return false
}

func formatNorm(norm int64, months bool) string {
	if months {
		if norm%12 == 0 {
			return fmt.Sprintf("%dy", norm/12)
		}
		return fmt.Sprintf("%dmo", norm)
	}
	switch {
	case norm%86400 == 0:
		return fmt.Sprintf("%dd", norm/86400)
	case norm%3600 == 0:
		return fmt.Sprintf("%dh", norm/3600)
	case norm%60 == 0:
		return fmt.Sprintf("%dm", norm/60)
	default:
		return fmt.Sprintf("%ds", norm)
	}
}

func (m *MatchTimerange) String() string {
	var parts []string
	switch m.style {
	case types.TimerangeGRIB1, types.TimerangeGRIB2:
		if m.hasType {
			parts = append(parts, strconv.Itoa(m.typ))
		}
		if m.hasP1 {
			parts = append(parts, formatNorm(m.p1, m.p1M))
		}
		if m.hasP2 {
			parts = append(parts, formatNorm(m.p2, m.p2M))
		}
	case types.TimerangeTimedef:
		if m.hasStep {
			parts = append(parts, "+"+formatNorm(m.step, m.stepM))
		} else {
			parts = append(parts, "-")
		}
		if m.hasStat {
			parts = append(parts, strconv.Itoa(m.statType))
			if m.hasSLen {
				parts = append(parts, formatNorm(m.statLen, m.statLenM))
			}
		}
	case types.TimerangeBUFR:
		if m.hasValue {
			parts = append(parts, formatNorm(m.value, m.valueM))
		}
	}
	if len(parts) == 0 {
		return m.style.String()
	}
	return m.style.String() + "," + strings.Join(parts, ",")
}
