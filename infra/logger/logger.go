package logger

import corelogger "github.com/kilianp07/planboard/core/logger"

// Logger is the logging interface of the domain packages.
type Logger = corelogger.Logger

// New returns a Logger tagged with the given component. The output format
// is selected by Configure or, by default, by the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
