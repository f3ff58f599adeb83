package irc

import (
	"io"
	"log"
	"os"
)

var (
	infoLog  = log.New(os.Stderr, "INFO  ", log.LstdFlags)
	warnLog  = log.New(os.Stderr, "WARN  ", log.LstdFlags)
	errorLog = log.New(os.Stderr, "ERROR ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG ", log.LstdFlags)
)

// SetLogOutput sends server logs to w. Debug lines (every line in and
// out) are only written when debug is set.
func SetLogOutput(w io.Writer, debug bool) {
	infoLog.SetOutput(w)
	warnLog.SetOutput(w)
	errorLog.SetOutput(w)
	if debug {
		debugLog.SetOutput(w)
	} else {
		debugLog.SetOutput(io.Discard)
	}
}
