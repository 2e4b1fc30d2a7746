package logger

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Logger is a subsystem logger. Log messages are tagged with the subsystem
// tag and filtered by the logger's level before being handed to the backend.
type Logger struct {
	lvl       Level // atomic
	tag       string
	b         *Backend
	writeChan chan<- logEntry
}

var (
	backendLog = NewBackend()

	subsystemsMutex sync.Mutex
	subsystems      = make(map[string]*Logger)
)

// RegisterSubSystem returns a logger for subsystemTag, creating it on the
// default backend if it wasn't registered before. Calling it twice with the
// same tag returns the same logger.
func RegisterSubSystem(subsystemTag string) *Logger {
	subsystemsMutex.Lock()
	defer subsystemsMutex.Unlock()
	logger, ok := subsystems[subsystemTag]
	if !ok {
		logger = backendLog.Logger(subsystemTag)
		subsystems[subsystemTag] = logger
	}
	return logger
}

// InitLog attaches log file and error log file to the backend log and runs it.
func InitLog(logFile, errLogFile string) error {
	err := backendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return fmt.Errorf("error adding log file %s as log rotator for level %s: %s", logFile, LevelTrace, err)
	}
	err = backendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return fmt.Errorf("error adding log file %s as log rotator for level %s: %s", errLogFile, LevelWarn, err)
	}
	err = backendLog.AddLogWriter(os.Stdout, LevelInfo)
	if err != nil {
		return fmt.Errorf("error adding stdout to the logger: %s", err)
	}
	return backendLog.Run()
}

// SetLogLevels sets the logging level for all registered subsystems.
func SetLogLevels(level Level) {
	subsystemsMutex.Lock()
	defer subsystemsMutex.Unlock()
	for _, logger := range subsystems {
		logger.SetLevel(level)
	}
}

// Close shuts down the default backend, flushing any pending writes.
func Close() {
	backendLog.Close()
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32((*uint32)(&l.lvl)))
}

// SetLevel changes the logging level to the passed level.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.lvl), uint32(level))
}

func (l *Logger) write(logLvl Level, format string, args ...interface{}) {
	if !l.b.IsRunning() {
		return
	}
	t := time.Now() // get as early as possible

	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}

	// 2009-01-02 15:04:05.123 [INF] TAG: message
	formatted := fmt.Sprintf("%s [%s] %s: %s\n",
		t.Format("2006-01-02 15:04:05.000"), logLvl, l.tag, message)

	l.writeChan <- logEntry{log: []byte(formatted), level: logLvl}
}

func (l *Logger) writeAtLevel(logLvl Level, format string, args ...interface{}) {
	if l.Level() <= logLvl {
		l.write(logLvl, format, args...)
	}
}

// Tracef formats message according to format specifier and writes to
// to log with LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.writeAtLevel(LevelTrace, format, args...)
}

// Debugf formats message according to format specifier and writes to
// log with LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.writeAtLevel(LevelDebug, format, args...)
}

// Infof formats message according to format specifier and writes to
// log with LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.writeAtLevel(LevelInfo, format, args...)
}

// Warnf formats message according to format specifier and writes to
// to log with LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.writeAtLevel(LevelWarn, format, args...)
}

// Errorf formats message according to format specifier and writes to
// to log with LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.writeAtLevel(LevelError, format, args...)
}

// Criticalf formats message according to format specifier and writes to
// log with LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.writeAtLevel(LevelCritical, format, args...)
}

// Trace formats message using the default formats for its operands
// and writes to log with LevelTrace.
func (l *Logger) Trace(args ...interface{}) {
	l.writeAtLevel(LevelTrace, "%s", fmt.Sprint(args...))
}

// Debug formats message using the default formats for its operands
// and writes to log with LevelDebug.
func (l *Logger) Debug(args ...interface{}) {
	l.writeAtLevel(LevelDebug, "%s", fmt.Sprint(args...))
}

// Info formats message using the default formats for its operands
// and writes to log with LevelInfo.
func (l *Logger) Info(args ...interface{}) {
	l.writeAtLevel(LevelInfo, "%s", fmt.Sprint(args...))
}

// Warn formats message using the default formats for its operands
// and writes to log with LevelWarn.
func (l *Logger) Warn(args ...interface{}) {
	l.writeAtLevel(LevelWarn, "%s", fmt.Sprint(args...))
}

// Error formats message using the default formats for its operands
// and writes to log with LevelError.
func (l *Logger) Error(args ...interface{}) {
	l.writeAtLevel(LevelError, "%s", fmt.Sprint(args...))
}

// Critical formats message using the default formats for its operands
// and writes to log with LevelCritical.
func (l *Logger) Critical(args ...interface{}) {
	l.writeAtLevel(LevelCritical, "%s", fmt.Sprint(args...))
}

// Caller returns file:line of the caller, skipping skip stack frames. Useful
// for tracing callsites of unexpected conditions.
func Caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
