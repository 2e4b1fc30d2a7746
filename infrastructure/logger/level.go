package logger

import "strings"

// Level is a message severity. A logger configured at some level drops
// every message below it.
type Level uint32

// Severity levels, from noisiest to silent.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

// levelTags holds the three-letter tag each level prints in log lines.
var levelTags = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

// LevelFromString parses a level from its long or short name. Unrecognized
// input yields the info level and false.
func LevelFromString(s string) (l Level, ok bool) {
	switch strings.ToLower(s) {
	case "trace", "trc":
		return LevelTrace, true
	case "debug", "dbg":
		return LevelDebug, true
	case "info", "inf":
		return LevelInfo, true
	case "warn", "wrn":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "critical", "crt":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// String returns the level's log-line tag. Any value at or above LevelOff
// stringifies as "OFF".
func (l Level) String() string {
	if l >= LevelOff {
		return "OFF"
	}
	return levelTags[l]
}
