package heap

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Kind classifies a failure into one of five taxonomies: every error
// this package produces maps to exactly one.
type Kind int

const (
	// OutOfMemory: the OS source refused. Recoverable.
	OutOfMemory Kind = iota
	// InvalidSize: zero size, overflowing size, or allocate_aligned
	// called with a non-power-of-two alignment or non-multiple size.
	// Recoverable.
	InvalidSize
	// InvalidPointer: a deallocate/reallocate target lies outside
	// every registered region, or is misaligned. Fatal.
	InvalidPointer
	// Corruption: header magic mismatch, footer/size mismatch, or an
	// invalid free-list link. Fatal.
	Corruption
	// DoubleFree: the header already has is_free == 1 on deallocate.
	// Fatal.
	DoubleFree
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case InvalidSize:
		return "INVALID_SIZE"
	case InvalidPointer:
		return "INVALID_POINTER"
	case Corruption:
		return "CORRUPTION"
	case DoubleFree:
		return "DOUBLE_FREE"
	default:
		return "UNKNOWN"
	}
}

// fatal reports whether callers of this Kind must terminate the process
// rather than return an error value.
func (k Kind) fatal() bool {
	return k == InvalidPointer || k == Corruption || k == DoubleFree
}

// Fault is the (kind, address, message) triple passed to an installed
// corruption handler and printed in the default abort diagnostic. It is
// built with github.com/pkg/errors so a fatal fault carries a captured
// stack trace.
type Fault struct {
	Kind    Kind
	Address uintptr
	Message string
	cause   error
}

func newFault(kind Kind, addr uintptr, msg string) *Fault {
	return &Fault{Kind: kind, Address: addr, Message: msg, cause: errors.New(msg)}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("heap: %s at %#x: %s", f.Kind, f.Address, f.Message)
}

// StackTrace exposes the github.com/pkg/errors-captured stack of a
// fatal fault, for diagnostic printing.
func (f *Fault) StackTrace() errors.StackTrace {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := f.cause.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}

// CorruptionHandler is invoked on any fatal Fault instead of the default
// abort behavior.
type CorruptionHandler func(kind Kind, address uintptr, message string)

var (
	corruptionHandler atomic.Pointer[CorruptionHandler]
	lastFault         atomic.Pointer[Fault]
)

// InstallCorruptionHandler registers fn to be called instead of the
// default print-and-abort behavior whenever a fatal fault is detected.
// Passing nil restores the default. By the time corruption is observed,
// arbitrary memory may already be compromised, so handlers are expected
// to log and exit, not to attempt recovery.
func InstallCorruptionHandler(fn CorruptionHandler) {
	if fn == nil {
		corruptionHandler.Store(nil)
		return
	}
	corruptionHandler.Store(&fn)
}

// LastError returns the most recent recoverable Fault observed by this
// process, or nil if none has occurred since the process started.
// Successful operations do not clear it. Go has no portable
// goroutine-local storage, so this is process-wide rather than
// per-thread: a concurrent recoverable failure on another goroutine can
// overwrite it before the original caller reads it.
func LastError() *Fault {
	return lastFault.Load()
}

func recordRecoverable(kind Kind, addr uintptr, msg string) *Fault {
	f := newFault(kind, addr, msg)
	lastFault.Store(f)
	logger.WithFields(map[string]interface{}{
		"kind":    kind.String(),
		"address": fmt.Sprintf("%#x", addr),
	}).Debug(msg)
	return f
}

// exitFunc is called by the default corruption handler to terminate the
// process. It is a variable, not a direct os.Exit call, so the test
// suite can substitute a panic-and-recover stand-in when exercising the
// double-free, corruption, and invalid-pointer paths without killing
// the test binary.
var exitFunc = os.Exit

// fatalFault dispatches a fatal Fault to the installed handler (or the
// default diagnostic-and-abort behavior). With no handler installed it
// terminates the process via exitFunc; with a handler installed it
// returns once the handler returns, and callers abandon the operation.
func fatalFault(kind Kind, addr uintptr, msg string) {
	f := newFault(kind, addr, msg)
	logger.WithFields(map[string]interface{}{
		"kind":    kind.String(),
		"address": fmt.Sprintf("%#x", addr),
	}).Error(msg)

	if h := corruptionHandler.Load(); h != nil {
		(*h)(kind, addr, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "heap: fatal %s at %#x: %s\n", kind, addr, msg)
	if st := f.StackTrace(); st != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", st)
	}
	exitFunc(2)
}
