// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcher routes scanned messages into datasets by filter
// match, with outbound copies and error/duplicates fallbacks.
package dispatcher

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/meteo-dpc/arkive/internal/dataset"
	"github.com/meteo-dpc/arkive/internal/metrics"
	"github.com/meteo-dpc/arkive/pkg/log"
	"github.com/meteo-dpc/arkive/pkg/matcher"
	"github.com/meteo-dpc/arkive/pkg/types"
)

// Outcome of dispatching one message.
type Outcome int

const (
	// Imported ok.
	Ok Outcome = iota
	// Duplicate, imported in the duplicates or error dataset.
	DuplicateError
	// Imported in the error dataset for other problems.
	Error
	// Had problems, and even writing to the error dataset failed.
	NotWritten
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "OK"
	case DuplicateError:
		return "DUPLICATE_ERROR"
	case Error:
		return "ERROR"
	case NotWritten:
		return "NOT_WRITTEN"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Validator vets a message before routing. Failing messages are
// annotated and sent to the error dataset.
type Validator interface {
	Name() string
	Validate(md *types.Metadata) error
}

// Route is one (name, filter) dispatch target.
type Route struct {
	Name   string
	Filter *matcher.Matcher
}

// Dispatcher routes messages to normal and outbound datasets, with a
// designated error dataset and an optional duplicates dataset.
type Dispatcher struct {
	routes     []Route
	outbounds  []Route
	validators []Validator

	writers    map[string]dataset.Writer
	modes      map[string]dataset.WriteMode
	errorDS    dataset.Writer
	duplicates dataset.Writer

	outboundFailures int
}

// New builds a dispatcher over open writers. The writer named
// "error" is the error fallback; "duplicates", when present, receives
// rejected duplicates.
func New(configs []*dataset.Config, writers map[string]dataset.Writer) (*Dispatcher, error) {
	d := &Dispatcher{
		writers: writers,
		modes:   make(map[string]dataset.WriteMode),
	}
	var names []string
	for name := range writers {
		names = append(names, name)
	}
	sort.Strings(names)

	byName := make(map[string]*dataset.Config, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}

	for _, name := range names {
		cfg, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no configuration for dataset %s", name)
		}
		d.modes[name] = dataset.ModeFor(cfg)
		switch {
		case name == "error":
			d.errorDS = writers[name]
		case name == "duplicates":
			d.duplicates = writers[name]
		case cfg.Type == "outbound":
			d.outbounds = append(d.outbounds, Route{Name: name, Filter: cfg.Filter})
		default:
			d.routes = append(d.routes, Route{Name: name, Filter: cfg.Filter})
		}
	}
	if d.errorDS == nil {
		return nil, fmt.Errorf("dispatching requires an error dataset")
	}
	return d, nil
}

func (d *Dispatcher) AddValidator(v Validator) {
	d.validators = append(d.validators, v)
}

// OutboundFailures returns the failed outbound acquires since the
// dispatcher was created. Details are in the message notes.
func (d *Dispatcher) OutboundFailures() int { return d.outboundFailures }

// matchingRoutes returns the normal datasets whose filter accepts md.
func (d *Dispatcher) matchingRoutes(md *types.Metadata) []string {
	var found []string
	for _, route := range d.routes {
		if route.Filter.Match(&md.ItemSet) {
			found = append(found, route.Name)
		}
	}
	return found
}

func (d *Dispatcher) acquire(name string, w dataset.Writer, md *types.Metadata) (dataset.AcquireResult, error) {
	res, err := w.Acquire(md, d.modes[name])
	if err != nil {
		log.Warnf("acquire into %s: %v", name, err)
	}
	return res, err
}

// Dispatch routes one message and returns the outcome. The metadata
// is annotated in place; on success its source points into the
// destination dataset.
func (d *Dispatcher) Dispatch(md *types.Metadata) Outcome {
	outcome := d.dispatch(md)
	metrics.MessagesDispatched.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (d *Dispatcher) dispatch(md *types.Metadata) Outcome {
	if _, ok := md.Reftime(); !ok {
		md.AddNote("Validation error: reference time is missing")
		// The error dataset still needs a segment to store the
		// message in; file it under the import time.
		md.Set(types.NewReftimePosition(types.TimeOf(time.Now())))
		return d.toError(md)
	}

	for _, v := range d.validators {
		if err := v.Validate(md); err != nil {
			md.AddNote(fmt.Sprintf("Validation error (%s): %v", v.Name(), err))
			return d.toError(md)
		}
	}

	// Outbound copies never change the outcome of the main dispatch.
	for _, route := range d.outbounds {
		if !route.Filter.Match(&md.ItemSet) {
			continue
		}
		clone := md.Clone()
		if res, err := d.acquire(route.Name, d.writers[route.Name], clone); err != nil || res != dataset.AcquireOK {
			d.outboundFailures++
			md.AddNote(fmt.Sprintf("Failed to store in outbound dataset %s", route.Name))
		}
	}

	found := d.matchingRoutes(md)
	switch len(found) {
	case 0:
		md.AddNote("Message could not be assigned to any dataset")
		return d.toError(md)
	case 1:
	default:
		md.AddNote(fmt.Sprintf("Message matched multiple datasets: %s", strings.Join(found, ", ")))
		return d.toError(md)
	}

	name := found[0]
	res, err := d.acquire(name, d.writers[name], md)
	if err == nil && res == dataset.AcquireOK {
		return Ok
	}
	if res == dataset.AcquireErrorDuplicate {
		md.AddNote(fmt.Sprintf("Duplicate of a message in dataset %s", name))
		if d.duplicates != nil {
			if res, err := d.acquire("duplicates", d.duplicates, md); err == nil && res == dataset.AcquireOK {
				return DuplicateError
			}
		}
		if out := d.toError(md); out == NotWritten {
			return NotWritten
		}
		return DuplicateError
	}
	md.AddNote(fmt.Sprintf("Failed to store in dataset %s: %v", name, err))
	return d.toError(md)
}

func (d *Dispatcher) toError(md *types.Metadata) Outcome {
	if res, err := d.acquire("error", d.errorDS, md); err != nil || res != dataset.AcquireOK {
		return NotWritten
	}
	return Error
}

// Flush commits all writers.
func (d *Dispatcher) Flush() error {
	var firstErr error
	for name, w := range d.writers {
		if err := w.Flush(); err != nil {
			log.Errorf("flushing %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// TestDispatcher performs the same routing decisions but writes
// nothing: every decision is reported to a text sink.
type TestDispatcher struct {
	routes     []Route
	outbounds  []Route
	validators []Validator
	out        io.Writer
	count      int
}

func NewTest(configs []*dataset.Config, out io.Writer) *TestDispatcher {
	d := &TestDispatcher{out: out}
	sorted := append([]*dataset.Config(nil), configs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, cfg := range sorted {
		switch {
		case cfg.Name == "error" || cfg.Name == "duplicates":
		case cfg.Type == "outbound":
			d.outbounds = append(d.outbounds, Route{Name: cfg.Name, Filter: cfg.Filter})
		default:
			d.routes = append(d.routes, Route{Name: cfg.Name, Filter: cfg.Filter})
		}
	}
	return d
}

func (d *TestDispatcher) AddValidator(v Validator) {
	d.validators = append(d.validators, v)
}

func (d *TestDispatcher) Dispatch(md *types.Metadata) Outcome {
	d.count++
	prefix := fmt.Sprintf("Message %d", d.count)

	if _, ok := md.Reftime(); !ok {
		fmt.Fprintf(d.out, "%s: reference time is missing, would go to the error dataset\n", prefix)
		return Error
	}
	for _, v := range d.validators {
		if err := v.Validate(md); err != nil {
			fmt.Fprintf(d.out, "%s: validation failed (%s): %v, would go to the error dataset\n", prefix, v.Name(), err)
			return Error
		}
	}
	for _, route := range d.outbounds {
		if route.Filter.Match(&md.ItemSet) {
			fmt.Fprintf(d.out, "%s: would also be exported to outbound dataset %s\n", prefix, route.Name)
		}
	}

	var found []string
	for _, route := range d.routes {
		if route.Filter.Match(&md.ItemSet) {
			found = append(found, route.Name)
		}
	}
	switch len(found) {
	case 0:
		fmt.Fprintf(d.out, "%s: matches no dataset, would go to the error dataset\n", prefix)
		return Error
	case 1:
		fmt.Fprintf(d.out, "%s: would go to dataset %s\n", prefix, found[0])
		return Ok
	default:
		fmt.Fprintf(d.out, "%s: matches multiple datasets (%s), would go to the error dataset\n",
			prefix, strings.Join(found, ", "))
		return Error
	}
}
