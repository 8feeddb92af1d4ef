package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/types"
)

// feedConsole is a real console surface for feed replay: its base
// handlers print to stdout/stderr, and the interceptor wraps them just
// like it would wrap a live host's console.
type feedConsole struct {
	mu       sync.RWMutex
	handlers map[types.Severity]host.PrintFunc
}

func newFeedConsole() *feedConsole {
	c := &feedConsole{handlers: make(map[types.Severity]host.PrintFunc)}
	for _, level := range []types.Severity{
		types.SeverityDebug, types.SeverityInfo, types.SeverityWarn, types.SeverityError,
	} {
		level := level
		out := os.Stdout
		if level == types.SeverityWarn || level == types.SeverityError {
			out = os.Stderr
		}
		c.handlers[level] = func(args ...interface{}) {
			fmt.Fprintln(out, args...)
		}
	}
	return c
}

func (c *feedConsole) Levels() []types.Severity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	levels := make([]types.Severity, 0, len(c.handlers))
	for l := range c.handlers {
		levels = append(levels, l)
	}
	return levels
}

func (c *feedConsole) Handler(level types.Severity) host.PrintFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[level]
}

func (c *feedConsole) SetHandler(level types.Severity, fn host.PrintFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[level]; !ok {
		return fmt.Errorf("unsupported console level %q", level)
	}
	c.handlers[level] = fn
	return nil
}

// emit drives a feed line through whatever handler is installed, so
// intercepted levels are captured exactly like live host output.
func (c *feedConsole) emit(level, message string) {
	sev := types.Severity(level)
	if !sev.Valid() {
		sev = types.SeverityInfo
	}
	h := c.Handler(sev)
	if h == nil {
		h = c.Handler(types.SeverityInfo)
	}
	if h != nil {
		h(message)
	}
}

// feedMutations is an in-process mutation stream fed by the replay loop.
type feedMutations struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(host.Mutation)
}

func newFeedMutations() *feedMutations {
	return &feedMutations{subs: make(map[int]func(host.Mutation))}
}

func (m *feedMutations) Subscribe(fn func(host.Mutation)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *feedMutations) publish(mut host.Mutation) {
	m.mu.RLock()
	subs := make([]func(host.Mutation), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(mut)
	}
}
