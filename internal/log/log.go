// Copyright 2015 Light Code Labs, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log builds the process-wide zap.Logger for fcgid: stderr,
// console-encoded by default, JSON for shipping.
package log

import (
	"fmt"
	"os"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zapcore.Encoder used for emitted log lines.
type Format string

const (
	// Console renders human-readable lines; the default for interactive use.
	Console Format = "console"
	// JSON renders one JSON object per line, for log shipping.
	JSON Format = "json"
)

// Config controls the logger New builds.
type Config struct {
	// Level is one of debug, info, warn, error. Empty selects info.
	Level string
	// Format selects Console or JSON encoding. Empty selects Console.
	Format Format

	// File, if set, additionally writes JSON-encoded log lines to this
	// path through a rotating writer, so a long-running fcgid process
	// doesn't grow its log file without bound. Empty disables file
	// logging; only the stderr sink is used.
	File string
	// FileMaxSizeMB is the size, in megabytes, a log file may reach
	// before it's rotated. Zero selects 100.
	FileMaxSizeMB int
	// FileMaxBackups is the number of rotated files to retain. Zero
	// selects 7.
	FileMaxBackups int
	// FileMaxAgeDays is the maximum age, in days, a rotated file is
	// kept before deletion. Zero selects 28.
	FileMaxAgeDays int
	// FileCompress gzip-compresses rotated files when true.
	FileCompress bool
}

// New builds a zap.Logger writing to stderr per cfg, additionally tee'd to
// a rotating file sink when cfg.File is set. Every accepted connection and
// request logged by the fastcgi package flows through the logger returned
// here (spec §10, AMBIENT STACK).
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stderrEncoder zapcore.Encoder
	switch cfg.Format {
	case JSON:
		stderrEncoder = zapcore.NewJSONEncoder(encCfg)
	case Console, "":
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stderrEncoder = zapcore.NewConsoleEncoder(consoleCfg)
	default:
		return nil, fmt.Errorf("log: unrecognized format: %s", cfg.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEncoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}

	if cfg.File != "" {
		rotator := &timberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
			MaxBackups: orDefault(cfg.FileMaxBackups, 7),
			MaxAge:     orDefault(cfg.FileMaxAgeDays, 28),
			Compress:   cfg.FileCompress,
		}
		fileEncoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("log: unrecognized level: %s", level)
	}
}
