// Copyright (C) 2026 Meteo-DPC.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Provides a simple way of logging with different levels.
// Time/Date are not logged because systemd adds
// them for us (Default, can be changed by config option 'logdate').
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	DebugLog *log.Logger
	InfoLog  *log.Logger
	WarnLog  *log.Logger
	ErrLog   *log.Logger
	CritLog  *log.Logger
)

func init() {
	Init("info", false)
}

func Init(lvl string, logdate bool) {
	// Start from every level enabled, so that a later call can lower
	// the level chosen by an earlier one (the package init included).
	DebugWriter, InfoWriter, WarnWriter, ErrWriter = os.Stderr, os.Stderr, os.Stderr, os.Stderr
	switch lvl {
	case "crit":
		ErrWriter = io.Discard
		fallthrough
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
		// Nothing to do...
	default:
		fmt.Printf("pkg/log: invalid loglevel %#v, falling back to 'debug'\n", lvl)
	}

	logDateTime = logdate
	flags := 0
	if logDateTime {
		flags = log.LstdFlags
	}

	DebugLog = log.New(DebugWriter, DebugPrefix, flags)
	InfoLog = log.New(InfoWriter, InfoPrefix, flags)
	WarnLog = log.New(WarnWriter, WarnPrefix, flags|log.Lshortfile)
	ErrLog = log.New(ErrWriter, ErrPrefix, flags|log.Llongfile)
	CritLog = log.New(CritWriter, CritPrefix, flags|log.Llongfile)
}

/* PRINT */

func Print(v ...interface{}) {
	Info(v...)
}

func Debug(v ...interface{}) {
	if DebugWriter != io.Discard {
		DebugLog.Output(2, fmt.Sprint(v...))
	}
}

func Info(v ...interface{}) {
	if InfoWriter != io.Discard {
		InfoLog.Output(2, fmt.Sprint(v...))
	}
}

func Warn(v ...interface{}) {
	if WarnWriter != io.Discard {
		WarnLog.Output(2, fmt.Sprint(v...))
	}
}

func Error(v ...interface{}) {
	if ErrWriter != io.Discard {
		ErrLog.Output(2, fmt.Sprint(v...))
	}
}

// Writes panic stacktrace, keeps application alive
func Panic(v ...interface{}) {
	Error(v...)
	panic("Panic triggered ...")
}

// Writes error log, stops application
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Crit(v ...interface{}) {
	if CritWriter != io.Discard {
		CritLog.Output(2, fmt.Sprint(v...))
	}
}

/* PRINT FORMAT */

func Printf(format string, v ...interface{}) {
	Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter != io.Discard {
		DebugLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter != io.Discard {
		InfoLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter != io.Discard {
		WarnLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrWriter != io.Discard {
		ErrLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("Panic triggered ...")
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

func Critf(format string, v ...interface{}) {
	if CritWriter != io.Discard {
		CritLog.Output(2, fmt.Sprintf(format, v...))
	}
}
