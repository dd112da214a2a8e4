package whatsapp

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/yllada/wa-desktop/common"
)

// libraryLogger routes whatsmeow log output to the application logger.
type libraryLogger struct {
	log    common.Logger
	module string
}

// newLibraryLogger returns a waLog.Logger writing to log under module.
func newLibraryLogger(log common.Logger, module string) waLog.Logger {
	return &libraryLogger{log: log, module: module}
}

func (l *libraryLogger) format(msg string, args []interface{}) string {
	return "[" + l.module + "] " + fmt.Sprintf(msg, args...)
}

func (l *libraryLogger) Debugf(msg string, args ...interface{}) {
	l.log.Debug("%s", l.format(msg, args))
}

func (l *libraryLogger) Infof(msg string, args ...interface{}) {
	l.log.Info("%s", l.format(msg, args))
}

func (l *libraryLogger) Warnf(msg string, args ...interface{}) {
	l.log.Warn("%s", l.format(msg, args))
}

func (l *libraryLogger) Errorf(msg string, args ...interface{}) {
	l.log.Error("%s", l.format(msg, args))
}

func (l *libraryLogger) Sub(module string) waLog.Logger {
	return &libraryLogger{log: l.log, module: l.module + "/" + module}
}
