// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagConfigFile string
	flagLogLevel   string
	flagLogDate    bool
	flagVersion    bool

	// Query options.
	flagQuery   string
	flagYaml    bool
	flagData    bool
	flagSummary bool
	flagSort    string

	// Dispatch options.
	flagDispatch bool
	flagTestDisp bool

	// Maintenance options.
	flagCheck    bool
	flagRepack   bool
	flagFix      bool
	flagIssue51  bool
	flagSchedule bool
)

func cliInit() {
	flag.StringVar(&flagConfigFile, "config", "./arkive.json", "Specify alternative path to program configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.BoolVar(&flagLogDate, "logdate", false, "Set this flag to add date and time to log messages")
	flag.BoolVar(&flagVersion, "version", false, "Print version information")

	flag.StringVar(&flagQuery, "query", "", "Query the datasets with the given matcher expression")
	flag.BoolVar(&flagYaml, "yaml", false, "Emit query results as human-readable text instead of binary metadata")
	flag.BoolVar(&flagData, "data", false, "Emit the raw payload bytes of the query results")
	flag.BoolVar(&flagSummary, "summary", false, "Emit a summary of the query results")
	flag.StringVar(&flagSort, "sort", "", "Sort query results, e.g. `day:origin, -timerange`")

	flag.BoolVar(&flagDispatch, "dispatch", false, "Dispatch the metadata files given as arguments into the datasets")
	flag.BoolVar(&flagTestDisp, "testdispatch", false, "Report dispatch decisions for the arguments without writing")

	flag.BoolVar(&flagCheck, "check", false, "Run a maintenance check on all datasets")
	flag.BoolVar(&flagRepack, "repack", false, "Repack all datasets, reclaiming deleted space")
	flag.BoolVar(&flagFix, "fix", false, "Apply fixes during check/repack instead of only reporting")
	flag.BoolVar(&flagIssue51, "check-issue51", false, "Check for (and with -fix repair) trailing duplicate payloads")
	flag.BoolVar(&flagSchedule, "serve-maintenance", false, "Keep running and execute the scheduled maintenance services")

	flag.Parse()
}
