// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// arkive is the command line front end of the archive core: it
// dispatches metadata files into datasets, queries them, and runs
// maintenance. Exit status: 0 all ok, 1 fatal error, 2 at least one
// dataset had issues.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meteo-dpc/arkive/internal/config"
	"github.com/meteo-dpc/arkive/internal/dataset"
	"github.com/meteo-dpc/arkive/internal/dispatcher"
	"github.com/meteo-dpc/arkive/internal/processor"
	"github.com/meteo-dpc/arkive/internal/scan"
	"github.com/meteo-dpc/arkive/internal/taskservice"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

const version = "1.0.0"

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cliInit()

	if flagVersion {
		fmt.Printf("arkive %s\n", version)
		return exitOK
	}

	// Apply config & environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("loading .env: %v", err)
	}
	config.Init(flagConfigFile)

	if flagLogLevel == "" {
		flagLogLevel = config.Keys.LogLevel
	}
	log.Init(flagLogLevel, flagLogDate || config.Keys.LogDate)

	if config.Keys.Aliases != "" {
		f, err := os.Open(config.Keys.Aliases)
		if err != nil {
			log.Errorf("cannot open alias file: %v", err)
			return exitFatal
		}
		err = matcher.LoadAliases(f)
		f.Close()
		if err != nil {
			log.Errorf("cannot load aliases: %v", err)
			return exitFatal
		}
	}

	configs, err := loadDatasets()
	if err != nil {
		log.Errorf("%v", err)
		return exitFatal
	}

	switch {
	case flagQuery != "" || flagSummary:
		return doQuery(configs)
	case flagDispatch || flagTestDisp:
		return doDispatch(configs)
	case flagCheck || flagRepack || flagIssue51:
		return doMaintenance(configs)
	case flagSchedule:
		return doServeMaintenance(configs)
	default:
		flag.Usage()
		return exitFatal
	}
}

func loadDatasets() ([]*dataset.Config, error) {
	var configs []*dataset.Config
	for _, dir := range config.Keys.Datasets {
		cfg, err := dataset.LoadConfig(dir)
		if err != nil {
			return nil, fmt.Errorf("loading dataset %s: %w", dir, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func doQuery(configs []*dataset.Config) int {
	q := matcher.Universal()
	if flagQuery != "" {
		var err error
		if q, err = matcher.Parse(flagQuery); err != nil {
			log.Errorf("cannot parse query: %v", err)
			return exitFatal
		}
	}

	pcfg := processor.Config{Query: q, Shape: processor.ShapeMetadata}
	switch {
	case flagSummary && flagYaml:
		pcfg.Shape = processor.ShapeSummaryYaml
	case flagSummary:
		pcfg.Shape = processor.ShapeSummary
	case flagData:
		pcfg.Shape = processor.ShapeData
	case flagYaml:
		pcfg.Shape = processor.ShapeYaml
	}
	if flagSort != "" {
		sorter, err := processor.ParseSorter(flagSort)
		if err != nil {
			log.Errorf("%v", err)
			return exitFatal
		}
		pcfg.Sorter = sorter
	}

	status := exitOK
	for _, cfg := range configs {
		r, err := dataset.OpenReader(cfg)
		if err != nil {
			log.Errorf("opening %s: %v", cfg.Name, err)
			status = exitPartial
			continue
		}
		if err := processor.Process(r, pcfg, os.Stdout); err != nil {
			log.Errorf("querying %s: %v", cfg.Name, err)
			status = exitPartial
		}
		r.Close()
	}
	return status
}

func doDispatch(configs []*dataset.Config) int {
	if flagTestDisp {
		d := dispatcher.NewTest(configs, os.Stdout)
		if err := addValidators(d.AddValidator); err != nil {
			log.Errorf("%v", err)
			return exitFatal
		}
		for _, path := range flag.Args() {
			if err := dispatchFile(path, d.Dispatch, nil); err != nil {
				log.Errorf("%v", err)
				return exitFatal
			}
		}
		return exitOK
	}

	writers := make(map[string]dataset.Writer, len(configs))
	defer func() {
		for _, w := range writers {
			w.Close()
		}
	}()
	for _, cfg := range configs {
		w, err := dataset.OpenWriter(cfg)
		if err != nil {
			log.Errorf("opening %s for writing: %v", cfg.Name, err)
			return exitFatal
		}
		writers[cfg.Name] = w
	}

	d, err := dispatcher.New(configs, writers)
	if err != nil {
		log.Errorf("%v", err)
		return exitFatal
	}
	if err := addValidators(d.AddValidator); err != nil {
		log.Errorf("%v", err)
		return exitFatal
	}

	counts := processor.ImportCounts{}
	start := time.Now()
	for _, path := range flag.Args() {
		if err := dispatchFile(path, d.Dispatch, &counts); err != nil {
			log.Errorf("%v", err)
			return exitFatal
		}
	}
	if err := d.Flush(); err != nil {
		log.Errorf("flushing datasets: %v", err)
		return exitFatal
	}
	counts.Elapsed = time.Since(start)
	fmt.Println(counts)

	if counts.NotImported > 0 {
		return exitPartial
	}
	return exitOK
}

func addValidators(add func(dispatcher.Validator)) error {
	for name, source := range config.Keys.Validators {
		v, err := dispatcher.NewExprValidator(name, source)
		if err != nil {
			return err
		}
		add(v)
	}
	return nil
}

func dispatchFile(path string, dispatch func(md *types.Metadata) dispatcher.Outcome, counts *processor.ImportCounts) error {
	scanner, closer, err := scan.OpenBundleFile(path, ".")
	if err != nil {
		return err
	}
	defer closer.Close()

	return scanner.Scan(func(md *types.Metadata) bool {
		outcome := dispatch(md)
		if counts == nil {
			return true
		}
		switch outcome {
		case dispatcher.Ok:
			counts.Ok++
		case dispatcher.DuplicateError:
			counts.Duplicates++
		default:
			counts.NotImported++
		}
		return true
	})
}

func doMaintenance(configs []*dataset.Config) int {
	status := exitOK
	for _, cfg := range configs {
		c, err := dataset.OpenChecker(cfg)
		if err != nil {
			log.Errorf("opening %s for maintenance: %v", cfg.Name, err)
			status = exitPartial
			continue
		}
		reporter := &dataset.WriterReporter{Out: os.Stdout, Dataset: cfg.Name}

		if flagCheck {
			if err := c.Check(reporter, !flagFix); err != nil {
				log.Errorf("checking %s: %v", cfg.Name, err)
				status = exitPartial
			}
		}
		if flagRepack {
			reclaimed, err := c.Repack(reporter, !flagFix)
			if err != nil {
				log.Errorf("repacking %s: %v", cfg.Name, err)
				status = exitPartial
			} else {
				fmt.Printf("%s: %d bytes reclaimed\n", cfg.Name, reclaimed)
			}
		}
		if flagIssue51 {
			if oc, ok := c.(interface {
				CheckIssue51(dataset.Reporter, bool) error
			}); ok {
				if err := oc.CheckIssue51(reporter, flagFix); err != nil {
					log.Errorf("check-issue51 %s: %v", cfg.Name, err)
					status = exitPartial
				}
			}
		}
		c.Close()
	}
	return status
}

func doServeMaintenance(configs []*dataset.Config) int {
	if !config.Keys.Maintenance.Enable {
		log.Error("maintenance services are disabled in the configuration")
		return exitFatal
	}
	taskservice.RegisterCheckService(config.Keys.Maintenance.CheckHour, configs)
	taskservice.RegisterRepackService(config.Keys.Maintenance.RepackHour, configs)
	taskservice.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down maintenance services")
	taskservice.Shutdown()
	return exitOK
}
