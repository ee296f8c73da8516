// Package logger provides component-tagged leveled logging.
//
// All output goes to stderr: when memvault runs as an MCP stdio server,
// stdout carries the protocol framing and must stay clean.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

var levelVar = &slog.LevelVar{}

var log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: levelVar,
}))

// SetLevel adjusts the global log level. Unknown values keep INFO.
func SetLevel(name string) {
	lv := slog.LevelInfo
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		lv = slog.LevelDebug
	case "WARN", "WARNING":
		lv = slog.LevelWarn
	case "ERROR":
		lv = slog.LevelError
	}
	levelVar.Set(lv)
}

func attrs(component string, fields map[string]interface{}) []any {
	out := make([]any, 0, 2+2*len(fields))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func DebugC(component, msg string) {
	log.Debug(msg, "component", component)
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	log.Debug(msg, attrs(component, fields)...)
}

func InfoC(component, msg string) {
	log.Info(msg, "component", component)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	log.Info(msg, attrs(component, fields)...)
}

func WarnC(component, msg string) {
	log.Warn(msg, "component", component)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	log.Warn(msg, attrs(component, fields)...)
}

func ErrorC(component, msg string) {
	log.Error(msg, "component", component)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	log.Error(msg, attrs(component, fields)...)
}
