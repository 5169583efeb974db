package heap

import (
	"os"

	"github.com/sirupsen/logrus"
)

// logger is a structured logger for operation tracing and fault
// reporting. Fatal faults always log at Error level regardless of
// tracing; routine operations log at Debug level only when tracing is
// enabled.
var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	if traceEnabledFromEnv() {
		SetTrace(true)
	}
}

func traceEnabledFromEnv() bool {
	v := os.Getenv("HEAP_TRACE")
	return v == "1" || v == "true"
}

// SetTrace toggles Debug-level logging of every allocate/deallocate/
// realloc call. Disabled by default; fatal faults log regardless of
// this setting.
func SetTrace(on bool) {
	if on {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	logger.SetLevel(logrus.InfoLevel)
}

func traceOp(op string, size int, addr uintptr, err error) {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	fields := logrus.Fields{"op": op, "size": size}
	if addr != 0 {
		fields["addr"] = addr
	}
	if err != nil {
		fields["err"] = err.Error()
	}
	logger.WithFields(fields).Debug("heap operation")
}
