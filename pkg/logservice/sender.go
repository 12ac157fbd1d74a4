// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package logservice

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LS is the global log service sender instance.
// It must be initialized via InitGlobalLogger before use.
var LS *Sender

// Config selects the console threshold and the persistence batching.
type Config struct {
	Level         string        // trace, debug, info, warning, error, critical
	Encoding      string        // "console" or "json"
	BatchSize     int           // log buffer batch size
	FlushInterval time.Duration // log buffer flush interval
}

// InitGlobalLogger initializes the global LS instance.
// This should be called once during application startup.
func InitGlobalLogger(cfg Config) error {
	sender, err := NewSender(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize global logger: %w", err)
	}
	LS = sender
	return nil
}

// Sender writes logs to the console through zap and, while attached to an
// operation's database, persists every entry into its LOGS buckets.
type Sender struct {
	logger     *zap.Logger
	Level      string
	minLevelIx int
	cfg        Config

	mu    sync.Mutex
	opLog *db.OperationLog
}

// getLevelIndex assigns numeric priority to levels.
func getLevelIndex(level string) int {
	switch level {
	case "trace":
		return 0
	case "debug":
		return 1
	case "info":
		return 2
	case "warning":
		return 3
	case "error":
		return 4
	case "critical":
		return 5
	default:
		return -1
	}
}

func zapLevel(ix int) zapcore.Level {
	switch ix {
	case 0, 1:
		return zapcore.DebugLevel
	case 2:
		return zapcore.InfoLevel
	case 3:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// NewSender builds a sender logging to stderr.
func NewSender(cfg Config) (*Sender, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}
	minIx := getLevelIndex(level)
	if minIx == -1 {
		return nil, fmt.Errorf("invalid threshold level: %s", cfg.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch cfg.Encoding {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log encoding: %s", cfg.Encoding)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapLevel(minIx)))

	return &Sender{
		logger:     zap.New(core),
		Level:      level,
		minLevelIx: minIx,
		cfg:        cfg,
	}, nil
}

// NewSenderWithLogger wraps an existing zap logger; used by tests and
// embedders that own their logging setup.
func NewSenderWithLogger(logger *zap.Logger, level string) *Sender {
	ix := getLevelIndex(level)
	if ix == -1 {
		ix = 2
	}
	return &Sender{logger: logger, Level: level, minLevelIx: ix}
}

// Attach starts a persisted run of operation in d and returns its run id.
func (s *Sender) Attach(d *db.DB, operation string) string {
	s.Detach()
	l := db.StartOperationLog(d, operation, s.cfg.BatchSize, s.cfg.FlushInterval)
	s.mu.Lock()
	s.opLog = l
	s.mu.Unlock()
	return l.Run()
}

// Detach flushes and ends the current run. Call it before the database
// closes. A failed flush is reported on the console.
func (s *Sender) Detach() {
	s.mu.Lock()
	l := s.opLog
	s.opLog = nil
	s.mu.Unlock()
	if l == nil {
		return
	}
	if err := l.Stop(); err != nil {
		s.logger.Warn("operation log incomplete", zap.String("operation", l.Operation()), zap.String("run", l.Run()), zap.Error(err))
	}
}

// Log writes the message to the console (if level >= threshold) and
// unconditionally to the attached database. Safe for concurrent use.
func (s *Sender) Log(level, message, entity, entityID string, fields ...zap.Field) error {
	levelIx := getLevelIndex(level)
	if levelIx == -1 {
		return fmt.Errorf("invalid level: %s", level)
	}

	s.mu.Lock()
	l := s.opLog
	s.mu.Unlock()

	if l != nil {
		l.Add(db.LogEntry{
			Timestamp: time.Now().UTC(),
			Level:     level,
			Entity:    entity,
			EntityID:  entityID,
			Message:   message,
		})
	}

	if levelIx < s.minLevelIx {
		return nil
	}
	all := make([]zap.Field, 0, len(fields)+3)
	all = append(all, zap.String("entity", entity), zap.String("entity_id", entityID))
	if levelIx == 5 {
		all = append(all, zap.Bool("critical", true))
	}
	all = append(all, fields...)
	if ce := s.logger.Check(zapLevel(levelIx), message); ce != nil {
		ce.Write(all...)
	}
	return nil
}

// Close flushes the console logger and stops persistence.
func (s *Sender) Close() error {
	s.Detach()
	_ = s.logger.Sync()
	return nil
}
