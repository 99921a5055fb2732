package l3bins

import (
	"io"
	"log"
)

var traceLogger *log.Logger

// SetLogWriters configures the trace stream for the l3bins package.
// Binning never fails, so there is no ops or diag stream. Pass nil to
// disable it.
func SetLogWriters(trace io.Writer) {
	if trace == nil {
		traceLogger = nil
		return
	}
	traceLogger = log.New(trace, "[l3bins] ", log.LstdFlags|log.Lmicroseconds)
}

func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
