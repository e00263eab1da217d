package logger

import (
	"fmt"
	"io"
	"log"
)

type logger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	traceLogger *log.Logger
}

func output(l *log.Logger, s string) {
	if l != nil {
		_ = l.Output(3, s)
	}
}

func (l *logger) Error(v ...any) { output(l.errorLogger, fmt.Sprintln(v...)) }
func (l *logger) Warn(v ...any)  { output(l.warnLogger, fmt.Sprintln(v...)) }
func (l *logger) Info(v ...any)  { output(l.infoLogger, fmt.Sprintln(v...)) }
func (l *logger) Debug(v ...any) { output(l.debugLogger, fmt.Sprintln(v...)) }
func (l *logger) Trace(v ...any) { output(l.traceLogger, fmt.Sprintln(v...)) }

func (l *logger) Errorf(format string, v ...any) { output(l.errorLogger, fmt.Sprintf(format, v...)) }
func (l *logger) Warnf(format string, v ...any)  { output(l.warnLogger, fmt.Sprintf(format, v...)) }
func (l *logger) Infof(format string, v ...any)  { output(l.infoLogger, fmt.Sprintf(format, v...)) }
func (l *logger) Debugf(format string, v ...any) { output(l.debugLogger, fmt.Sprintf(format, v...)) }
func (l *logger) Tracef(format string, v ...any) { output(l.traceLogger, fmt.Sprintf(format, v...)) }

// NewLogger enables every level up to and including level. Errors also go to
// errOut when it is not nil.
func NewLogger(level Level, out io.Writer, errOut io.Writer) *logger {
	flag := log.LstdFlags | log.Lshortfile
	newLevelLogger := func(lv Level, w io.Writer) *log.Logger {
		if level < lv {
			return nil
		}
		return log.New(w, fmt.Sprintf("%-5s:", lv), flag)
	}

	errW := out
	if errOut != nil {
		errW = errOut
	}

	return &logger{
		errorLogger: newLevelLogger(LevelError, errW),
		warnLogger:  newLevelLogger(LevelWarn, out),
		infoLogger:  newLevelLogger(LevelInfo, out),
		debugLogger: newLevelLogger(LevelDebug, out),
		traceLogger: newLevelLogger(LevelTrace, out),
	}
}

// Discard is a logger with every level disabled.
func Discard() *logger {
	return &logger{}
}
