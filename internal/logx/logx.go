package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	Reset = "\033[0m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// colors per level
var levelColor = map[string]string{
	"DEBUG": Cyan,
	"INFO":  Blue,
	"WARN":  Yellow,
	"ERROR": Red,
}

// colors per component
var componentColor = map[string]string{
	"Upload": Cyan,
	"Batch":  Blue,
	"Ingest": Magenta,
	"Config": Magenta,
	"HTTP":   Blue,
	"App":    Green,
}

var levelRank = map[string]int32{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

var minLevel atomic.Int32

func init() {
	minLevel.Store(levelRank["INFO"])
}

// SetLevel sets the lowest level that gets printed. Unknown names are ignored.
func SetLevel(level string) {
	if r, ok := levelRank[strings.ToUpper(strings.TrimSpace(level))]; ok {
		minLevel.Store(r)
	}
}

// enabled tells if messages at level are printed.
func enabled(level string) bool {
	return levelRank[level] >= minLevel.Load()
}

// detect color mode
func useColor() bool {
	return os.Getenv("ENV") == "local" || os.Getenv("ENV") == "dev"
}

// --- Public API ---

func Debug(component, msg string, args ...any) {
	logGeneric("DEBUG", component, msg, args...)
}

func Info(component, msg string, args ...any) {
	logGeneric("INFO", component, msg, args...)
}

func Warn(component, msg string, args ...any) {
	logGeneric("WARN", component, msg, args...)
}

func Error(component, msg string, args ...any) {
	logGeneric("ERROR", component, msg, args...)
}

// --- Core ---

func logGeneric(level, component, msg string, args ...any) {
	if !enabled(level) {
		return
	}
	full := fmt.Sprintf(msg, args...)

	if useColor() {
		lc := levelColor[level]
		cc := componentColor[component]
		log.Printf("%s[%s]%s %s[%s]%s %s",
			lc, level, Reset,
			cc, component, Reset,
			full,
		)
	} else {
		log.Printf("[%s] [%s] %s", level, component, full)
	}
}

// L logs with a correlation id, e.g. the id of one upload.
func L(id, component, msg string, args ...any) {
	if !enabled("INFO") {
		return
	}
	prefix := fmt.Sprintf("[%s][%s][%s] ",
		time.Now().Format(time.RFC3339),
		component,
		id,
	)
	log.Printf(prefix+msg, args...)
}
