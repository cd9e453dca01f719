package logger

import (
	"log"
	"os"
)

var (
	enabled = true
	debug   = os.Getenv("DEBUG") != ""
	logger  = log.New(os.Stdout, "", log.LstdFlags)
)

func EnableLogging(b bool) {
	enabled = b
}

// SetDebug toggles Debug output.
func SetDebug(b bool) {
	debug = b
}

func Info(msg string, v ...any) {
	if !enabled {
		return
	}
	logger.Printf(msg, v...)
}

func Error(msg string, v ...any) {
	if !enabled {
		return
	}
	logger.Printf("[ERROR] "+msg, v...)
}

func Debug(msg string, v ...any) {
	if !enabled || !debug {
		return
	}
	logger.Printf("[DEBUG] "+msg, v...)
}
