// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskservice schedules the recurring maintenance of the
// archive: nightly check and repack runs over all datasets, which
// also apply the archive age and delete age retention policies.
package taskservice

import (
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/meteo-dpc/arkive/internal/dataset"
	"github.com/meteo-dpc/arkive/pkg/log"
)

var s gocron.Scheduler

func initScheduler() {
	var err error
	s, err = gocron.NewScheduler()
	if err != nil {
		log.Fatalf("taskservice: cannot create scheduler: %v", err)
	}
}

// runAll opens a checker per dataset and applies op, isolating
// per-dataset failures.
func runAll(configs []*dataset.Config, op func(dataset.Checker, dataset.Reporter) error) {
	for _, cfg := range configs {
		c, err := dataset.OpenChecker(cfg)
		if err != nil {
			log.Warnf("maintenance: skipping %s: %v", cfg.Name, err)
			continue
		}
		reporter := &dataset.WriterReporter{Out: os.Stderr, Dataset: cfg.Name}
		if err := op(c, reporter); err != nil {
			log.Errorf("maintenance: %s: %v", cfg.Name, err)
		}
		c.Close()
	}
}

// RegisterCheckService schedules the nightly check run.
func RegisterCheckService(hour int, configs []*dataset.Config) {
	log.Info("Register check service")

	s.NewJob(gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(
			func() {
				start := time.Now()
				runAll(configs, func(c dataset.Checker, r dataset.Reporter) error {
					return c.Check(r, false)
				})
				log.Infof("check run finished in %s", time.Since(start))
			}))
}

// RegisterRepackService schedules the nightly repack run, which also
// enforces retention.
func RegisterRepackService(hour int, configs []*dataset.Config) {
	log.Info("Register repack service")

	s.NewJob(gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(
			func() {
				start := time.Now()
				var total int64
				runAll(configs, func(c dataset.Checker, r dataset.Reporter) error {
					reclaimed, err := c.Repack(r, false)
					total += reclaimed
					return err
				})
				log.Infof("repack run reclaimed %d bytes in %s", total, time.Since(start))
			}))
}

// Start begins executing the registered services.
func Start() {
	s.Start()
}

// Shutdown stops the scheduler, waiting for running jobs.
func Shutdown() {
	if err := s.Shutdown(); err != nil {
		log.Warnf("taskservice shutdown: %v", err)
	}
}

func init() {
	initScheduler()
}
