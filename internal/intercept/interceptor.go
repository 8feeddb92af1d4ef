// Package intercept wraps the host's diagnostic channel. Every captured
// call becomes a console-category log entry with safely serialized
// arguments; calls are forwarded to the original channel so existing host
// diagnostics keep working.
package intercept

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/logging"
	"github.com/stagewatch/stagewatch/internal/types"
)

// selfTag marks output produced by the harness itself. Tagged calls are
// never logged, breaking the feedback loop between the harness's own
// diagnostics and the interceptor.
const selfTag = "[stagewatch]"

// Config holds interceptor tuning.
type Config struct {
	// Forward controls pass-through to the original handlers. Default: true
	// (zero value of Suppress)
	Suppress bool
	// Limits bounds argument serialization
	Limits Limits
	// CaptureStacks enables call-stack capture on every entry
	CaptureStacks bool
	// StackDepth is the number of frames kept. Default: 8
	StackDepth int
}

// Interceptor swaps the console's per-level handlers for capturing
// wrappers. Stop restores the injected originals exactly.
type Interceptor struct {
	mu sync.Mutex

	console host.Console
	logger  *logging.Logger
	cfg     Config

	originals map[types.Severity]host.PrintFunc
	started   bool
}

// New creates an interceptor over the given console capability.
func New(console host.Console, logger *logging.Logger, cfg Config) (*Interceptor, error) {
	if console == nil {
		return nil, fmt.Errorf("console is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.StackDepth <= 0 {
		cfg.StackDepth = 8
	}
	return &Interceptor{
		console:   console,
		logger:    logger,
		cfg:       cfg,
		originals: make(map[types.Severity]host.PrintFunc),
	}, nil
}

// Start wraps every console level. Failure to wrap one level degrades
// that level to unobserved; the rest are still wrapped.
func (i *Interceptor) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started {
		return fmt.Errorf("interceptor already started")
	}

	for _, level := range i.console.Levels() {
		orig := i.console.Handler(level)
		if orig == nil {
			continue
		}
		if err := i.console.SetHandler(level, i.wrap(level, orig)); err != nil {
			fmt.Fprintf(os.Stderr, "%s interceptor: wrapping %s: %v\n", selfTag, level, err)
			continue
		}
		i.originals[level] = orig
	}
	i.started = true
	return nil
}

// Stop restores every wrapped level to its original handler. A failed
// restore on one level does not prevent restoring the others; the first
// error is returned after all levels were attempted.
func (i *Interceptor) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		return nil
	}

	var firstErr error
	for level, orig := range i.originals {
		if err := i.console.SetHandler(level, orig); err != nil {
			fmt.Fprintf(os.Stderr, "%s interceptor: restoring %s: %v\n", selfTag, level, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("restoring %s handler: %w", level, err)
			}
		}
	}
	i.originals = make(map[types.Severity]host.PrintFunc)
	i.started = false
	return firstErr
}

// wrap builds the capturing handler for one level. The wrapper never
// panics into the host: capture failures are contained and the original
// call still goes through.
func (i *Interceptor) wrap(level types.Severity, orig host.PrintFunc) host.PrintFunc {
	return func(args ...interface{}) {
		if !isSelfTagged(args) {
			i.capture(level, args)
		}
		if !i.cfg.Suppress {
			orig(args...)
		}
	}
}

// capture turns one console call into a log entry.
func (i *Interceptor) capture(level types.Severity, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "%s interceptor: capture panic: %v\n", selfTag, r)
		}
	}()

	serialized := SerializeArgs(args, i.cfg.Limits)

	var stack []string
	if i.cfg.CaptureStacks {
		// Skip the wrap closure and capture itself.
		stack = captureStack(2, i.cfg.StackDepth)
	}

	entry := &types.LogEntry{
		Severity:  level,
		Category:  types.CategoryConsole,
		Component: "interceptor",
		Action:    "console." + string(level),
		Message:   strings.Join(serialized, " "),
	}
	if err := entry.SetConsoleData(types.ConsoleData{
		Args:      serialized,
		Stack:     stack,
		Forwarded: !i.cfg.Suppress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%s interceptor: encoding console data: %v\n", selfTag, err)
	}
	i.logger.Append(entry)
}

// isSelfTagged reports whether the first argument textually marks the
// call as harness output.
func isSelfTagged(args []interface{}) bool {
	if len(args) == 0 {
		return false
	}
	s, ok := args[0].(string)
	return ok && strings.HasPrefix(s, selfTag)
}
