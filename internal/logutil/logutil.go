// Package logutil has helpers around the subsystem loggers.
package logutil

import (
	"fmt"

	"github.com/decred/slog"
)

// prefixLogger prepends a prefix to every message. The level methods are
// served by the embedded logger.
type prefixLogger struct {
	slog.Logger
	prefix string
}

func (p *prefixLogger) args(v []interface{}) []interface{} {
	return append([]interface{}{p.prefix}, v...)
}

func (p *prefixLogger) Tracef(format string, params ...interface{}) {
	p.Logger.Tracef(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Debugf(format string, params ...interface{}) {
	p.Logger.Debugf(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Infof(format string, params ...interface{}) {
	p.Logger.Infof(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Warnf(format string, params ...interface{}) {
	p.Logger.Warnf(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Errorf(format string, params ...interface{}) {
	p.Logger.Errorf(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Criticalf(format string, params ...interface{}) {
	p.Logger.Criticalf(p.prefix+" "+format, params...)
}

func (p *prefixLogger) Trace(v ...interface{})    { p.Logger.Trace(p.args(v)...) }
func (p *prefixLogger) Debug(v ...interface{})    { p.Logger.Debug(p.args(v)...) }
func (p *prefixLogger) Info(v ...interface{})     { p.Logger.Info(p.args(v)...) }
func (p *prefixLogger) Warn(v ...interface{})     { p.Logger.Warn(p.args(v)...) }
func (p *prefixLogger) Error(v ...interface{})    { p.Logger.Error(p.args(v)...) }
func (p *prefixLogger) Critical(v ...interface{}) { p.Logger.Critical(p.args(v)...) }

// PrefixLogger returns a logger that prepends a string in every message.
// Prefixing an already prefixed logger joins both prefixes.
func PrefixLogger(log slog.Logger, prefix string) slog.Logger {
	if p, ok := log.(*prefixLogger); ok {
		return &prefixLogger{Logger: p.Logger, prefix: p.prefix + " " + prefix}
	}
	return &prefixLogger{Logger: log, prefix: prefix}
}

// StreamLogger returns the logger of a stream, prefixed by its direction and
// id (for example "out#3:").
func StreamLogger(log slog.Logger, dir string, id uint64) slog.Logger {
	return PrefixLogger(log, fmt.Sprintf("%s#%d:", dir, id))
}
