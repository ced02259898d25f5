// Package logsvc implements core.Logger: structured zap output, warnings & errors forwarded to Rollbar.
package logsvc

import (
	"fmt"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kenamplan/backend/core"
	"github.com/kenamplan/backend/core/user"
)

type Logger struct {
	zl      *zap.Logger
	rollbar bool
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(conf *core.Config) (*Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	switch {
	case conf.TestMode:
		zl = zap.NewNop()
	case conf.Debug:
		zl, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	default:
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return nil, err
	}
	zl = zl.With(zap.String("app", conf.AppName), zap.String("env", conf.Env), zap.String("build", conf.Build))

	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)

	l := &Logger{zl: zl}
	l.Enable(conf.RollbarToken != "" && !conf.Debug && !conf.TestMode)
	return l, nil
}

// NewNopLogger discards everything; used by tests.
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// NewZapLogger wraps zl without Rollbar reporting.
func NewZapLogger(zl *zap.Logger) *Logger {
	return &Logger{zl: zl.WithOptions(zap.AddCallerSkip(1))}
}

// Enable toggles Rollbar reporting.
func (l *Logger) Enable(enabled bool) {
	l.rollbar = enabled
	rollbar.SetEnabled(enabled)
}

// Zap exposes the underlying logger, eg. for HTTP access logs.
func (l *Logger) Zap() *zap.Logger { return l.zl }

func (l *Logger) Sync() error {
	if l.rollbar {
		rollbar.Wait()
	}
	return l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, user.User
func fields(args []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			fs = append(fs, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				fs = append(fs, zap.Any(k, val))
			}
		case user.User:
			fs = append(fs, zap.String("user_id", v.ID), zap.String("username", v.Username))
		case nil:
		default:
			fs = append(fs, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return fs
}

// prepareRollbar sets the acting User & returns the args rollbar expects.
func prepareRollbar(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			if !usrSet { // only set one User
				rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
				usrSet = true
			}
		} else if arg != nil {
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

// log reports to Rollbar first: a fatal zap entry exits the process.
func (l *Logger) log(level zapcore.Level, msg string, args []interface{}) {
	if l.rollbar {
		switch level {
		case zapcore.WarnLevel:
			rollbar.Warning(prepareRollbar(msg, args)...)
		case zapcore.ErrorLevel:
			rollbar.Error(prepareRollbar(msg, args)...)
		case zapcore.FatalLevel:
			rollbar.Critical(prepareRollbar(msg, args)...)
			rollbar.Wait()
		}
	}
	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields(args)...)
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(zapcore.DebugLevel, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(zapcore.InfoLevel, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(zapcore.WarnLevel, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(zapcore.ErrorLevel, msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log(zapcore.FatalLevel, msg, args) }
