package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

// LogLevel represents different logging levels.
type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
)

var logLevelName = map[LogLevel]string{
	Debug: "debug",
	Info:  "info",
	Warn:  "warn",
	Error: "error",
}

var slogLevel = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func levelNames() []string {
	return []string{logLevelName[Debug], logLevelName[Info], logLevelName[Warn], logLevelName[Error]}
}

// Node renders the configured message and logs it.
type Node struct{}

func (Node) Execute(ctx context.Context, ectx *protocol.ExecutionContext, input map[string]any) protocol.Result {
	message, ok := ectx.Config["message"].(string)
	if !ok {
		return protocol.Failure(errors.New("missing required field 'message'"))
	}

	level := logLevelName[Info]
	if lvl, ok := ectx.Config["level"].(string); ok && lvl != "" {
		level = lvl
	}

	lvl, ok := slogLevel[level]
	if !ok {
		return protocol.Failure(fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", level))
	}

	rendered, err := template.RenderWithContext(message, ectx, input)
	if err != nil {
		return protocol.Failure(fmt.Errorf("failed to render log message template: %w", err))
	}

	text := fmt.Sprintf("%v", rendered)

	logger := ectx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Log(ctx, lvl, text, "node_id", ectx.NodeID, "node_type", Identifier, "run_id", ectx.RunID)

	return protocol.Success(map[string]any{
		"message": text,
		"level":   level,
		"logged":  true,
	})
}
