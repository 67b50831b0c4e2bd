// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dataset

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/meteo-dpc/arkive/pkg/types"
)

// Step is the policy mapping a reference time to the segment that
// stores it.
type Step int

const (
	StepYearly Step = iota
	StepBiennial
	StepMonthly
	StepBiweekly
	StepWeekly
	StepDaily
	StepSinglefile
)

func ParseStep(s string) (Step, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yearly":
		return StepYearly, nil
	case "biennial":
		return StepBiennial, nil
	case "monthly":
		return StepMonthly, nil
	case "biweekly":
		return StepBiweekly, nil
	case "weekly":
		return StepWeekly, nil
	case "daily":
		return StepDaily, nil
	case "singlefile":
		return StepSinglefile, nil
	}
	return 0, fmt.Errorf("unsupported step %q", s)
}

func (s Step) String() string {
	switch s {
	case StepYearly:
		return "yearly"
	case StepBiennial:
		return "biennial"
	case StepMonthly:
		return "monthly"
	case StepBiweekly:
		return "biweekly"
	case StepWeekly:
		return "weekly"
	case StepDaily:
		return "daily"
	case StepSinglefile:
		return "singlefile"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Relpath gives the segment path (without directories created) for a
// reference time. Singlefile steps embed a sequence number supplied
// by the writer.
func (s Step) Relpath(t types.Time, ext string, seq int) string {
	tm := t.Std()
	switch s {
	case StepYearly:
		return fmt.Sprintf("%02d/%04d.%s", tm.Year()/100, tm.Year(), ext)
	case StepBiennial:
		year := tm.Year() - tm.Year()%2
		return fmt.Sprintf("%02d/%04d.%s", year/100, year, ext)
	case StepMonthly:
		return fmt.Sprintf("%04d/%02d.%s", tm.Year(), tm.Month(), ext)
	case StepBiweekly:
		half := "a"
		if tm.Day() > 15 {
			half = "b"
		}
		return fmt.Sprintf("%04d/%02d-%s.%s", tm.Year(), tm.Month(), half, ext)
	case StepWeekly:
		week := (tm.Day()-1)/7 + 1
		return fmt.Sprintf("%04d/%02d-%d.%s", tm.Year(), tm.Month(), week, ext)
	case StepDaily:
		return fmt.Sprintf("%04d/%02d-%02d.%s", tm.Year(), tm.Month(), tm.Day(), ext)
	case StepSinglefile:
		return fmt.Sprintf("%04d/%02d-%02d.%02d%02d%02d.%04d.%s",
			tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second(), seq, ext)
	}
	return ""
}

var (
	reYearSeg   = regexp.MustCompile(`^\d{2}/(\d{4})\.\w+$`)
	reMonthSeg  = regexp.MustCompile(`^(\d{4})/(\d{2})\.\w+$`)
	reBiweekSeg = regexp.MustCompile(`^(\d{4})/(\d{2})-([ab])\.\w+$`)
	reWeekSeg   = regexp.MustCompile(`^(\d{4})/(\d{2})-(\d)\.\w+$`)
	reDaySeg    = regexp.MustCompile(`^(\d{4})/(\d{2})-(\d{2})(\.\d{6}\.\d{4})?\.\w+$`)
)

// TimeSpanOf recovers the [begin, end) reftime interval covered by a
// segment path, used to trim the segments a query needs to open.
func TimeSpanOf(relpath string) (begin, end types.Time, ok bool) {
	relpath = path.Clean(relpath)
	atoi := func(s string) int { n, _ := strconv.Atoi(s); return n }

	if m := reDaySeg.FindStringSubmatch(relpath); m != nil {
		begin = types.NewTime(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), 0, 0, 0)
		return begin, types.TimeOf(begin.Std().AddDate(0, 0, 1)), true
	}
	if m := reBiweekSeg.FindStringSubmatch(relpath); m != nil {
		y, mo := atoi(m[1]), time.Month(atoi(m[2]))
		if m[3] == "a" {
			begin = types.NewTime(y, mo, 1, 0, 0, 0)
			return begin, types.NewTime(y, mo, 16, 0, 0, 0), true
		}
		begin = types.NewTime(y, mo, 16, 0, 0, 0)
		return begin, types.TimeOf(types.NewTime(y, mo, 1, 0, 0, 0).Std().AddDate(0, 1, 0)), true
	}
	if m := reWeekSeg.FindStringSubmatch(relpath); m != nil {
		y, mo, week := atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])
		begin = types.NewTime(y, mo, (week-1)*7+1, 0, 0, 0)
		endDay := week * 7
		monthEnd := types.TimeOf(types.NewTime(y, mo, 1, 0, 0, 0).Std().AddDate(0, 1, 0))
		end = types.NewTime(y, mo, endDay+1, 0, 0, 0)
		if monthEnd.Before(end) {
			end = monthEnd
		}
		return begin, end, true
	}
	if m := reMonthSeg.FindStringSubmatch(relpath); m != nil {
		begin = types.NewTime(atoi(m[1]), time.Month(atoi(m[2])), 1, 0, 0, 0)
		return begin, types.TimeOf(begin.Std().AddDate(0, 1, 0)), true
	}
	if m := reYearSeg.FindStringSubmatch(relpath); m != nil {
		begin = types.NewTime(atoi(m[1]), time.January, 1, 0, 0, 0)
		return begin, types.TimeOf(begin.Std().AddDate(1, 0, 0)), true
	}
	return types.Time{}, types.Time{}, false
}
