// Copyright (C) 2025 The Carbonara Project.
// All rights reserved. This file is part of carbonara.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides leveled logging on top of the standard library.
// Messages carry systemd priority prefixes so that journald picks up the
// severity; timestamps are omitted by default because the supervisor adds
// them (enable with Init(..., true)).
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelCrit
)

var prefixes = map[level]string{
	levelDebug: "<7>[DEBUG]    ",
	levelInfo:  "<6>[INFO]     ",
	levelWarn:  "<4>[WARNING]  ",
	levelError: "<3>[ERROR]    ",
	levelCrit:  "<2>[CRITICAL] ",
}

var (
	minLevel = levelInfo
	loggers  = map[level]*log.Logger{}
)

func init() {
	build(false)
}

func build(dateTime bool) {
	flags := 0
	if dateTime {
		flags = log.LstdFlags
	}
	for lvl, prefix := range prefixes {
		f := flags
		if lvl >= levelWarn {
			f |= log.Lshortfile
		}
		loggers[lvl] = log.New(os.Stderr, prefix, f)
	}
}

// Init sets the minimum level ("debug", "info", "warn", "err", "crit") and
// whether to prepend date/time.
func Init(lvl string, dateTime bool) {
	switch lvl {
	case "debug":
		minLevel = levelDebug
	case "info":
		minLevel = levelInfo
	case "warn":
		minLevel = levelWarn
	case "err", "error", "fatal":
		minLevel = levelError
	case "crit":
		minLevel = levelCrit
	default:
		fmt.Fprintf(os.Stderr, "log: invalid level %q, using 'info'\n", lvl)
		minLevel = levelInfo
	}
	build(dateTime)
}

// SetOutput redirects all levels to w. Used by tests.
func SetOutput(w io.Writer) {
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

func output(lvl level, msg string) {
	if lvl < minLevel {
		return
	}
	loggers[lvl].Output(3, msg)
}

func Debug(v ...any) { output(levelDebug, fmt.Sprint(v...)) }
func Info(v ...any)  { output(levelInfo, fmt.Sprint(v...)) }
func Warn(v ...any)  { output(levelWarn, fmt.Sprint(v...)) }
func Error(v ...any) { output(levelError, fmt.Sprint(v...)) }

func Debugf(format string, v ...any) { output(levelDebug, fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { output(levelInfo, fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { output(levelWarn, fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { output(levelError, fmt.Sprintf(format, v...)) }

// Fatal logs at critical level and terminates the process.
func Fatal(v ...any) {
	output(levelCrit, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs at critical level and terminates the process.
func Fatalf(format string, v ...any) {
	output(levelCrit, fmt.Sprintf(format, v...))
	os.Exit(1)
}
