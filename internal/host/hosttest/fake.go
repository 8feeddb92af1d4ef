// Package hosttest provides an in-memory host implementation for tests.
// It backs every interface in package host with settable state so tests
// can script console output, mutation bursts, and state transitions.
package hosttest

import (
	"fmt"
	"sync"
	"time"

	"github.com/stagewatch/stagewatch/internal/host"
	"github.com/stagewatch/stagewatch/internal/types"
)

// Console is a fake diagnostic channel. The default handlers record
// forwarded lines so tests can assert pass-through behavior.
type Console struct {
	mu       sync.Mutex
	handlers map[types.Severity]host.PrintFunc
	origins  map[types.Severity]host.PrintFunc

	// Lines records every call that reached an original handler, formatted
	// with fmt.Sprintln semantics minus the trailing newline.
	Lines []string
}

// NewConsole creates a fake console supporting the standard severities.
func NewConsole() *Console {
	c := &Console{
		handlers: make(map[types.Severity]host.PrintFunc),
		origins:  make(map[types.Severity]host.PrintFunc),
	}
	for _, level := range []types.Severity{
		types.SeverityDebug, types.SeverityInfo, types.SeverityWarn, types.SeverityError,
	} {
		lv := level
		orig := func(args ...interface{}) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.Lines = append(c.Lines, string(lv)+": "+fmt.Sprint(args...))
		}
		c.handlers[lv] = orig
		c.origins[lv] = orig
	}
	return c
}

func (c *Console) Levels() []types.Severity {
	c.mu.Lock()
	defer c.mu.Unlock()
	levels := make([]types.Severity, 0, len(c.handlers))
	for lv := range c.handlers {
		levels = append(levels, lv)
	}
	return levels
}

func (c *Console) Handler(level types.Severity) host.PrintFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[level]
}

func (c *Console) SetHandler(level types.Severity, fn host.PrintFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[level]; !ok {
		return fmt.Errorf("console level %q not supported", level)
	}
	c.handlers[level] = fn
	return nil
}

// Original returns the pre-interception handler for a level, for
// referential-restore assertions.
func (c *Console) Original(level types.Severity) host.PrintFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origins[level]
}

// Print invokes the currently installed handler for a level, the way the
// host application would.
func (c *Console) Print(level types.Severity, args ...interface{}) {
	c.mu.Lock()
	fn := c.handlers[level]
	c.mu.Unlock()
	if fn != nil {
		fn(args...)
	}
}

// ForwardedLines returns a copy of the lines that reached the originals.
func (c *Console) ForwardedLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Lines...)
}

// Mutations is a fake mutation stream with a Publish method.
type Mutations struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(host.Mutation)
}

// NewMutations creates an empty fake mutation stream.
func NewMutations() *Mutations {
	return &Mutations{subs: make(map[int]func(host.Mutation))}
}

func (m *Mutations) Subscribe(fn func(host.Mutation)) func() {
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

// Publish delivers a mutation to every subscriber synchronously. A zero
// timestamp is filled with the current time.
func (m *Mutations) Publish(mut host.Mutation) {
	if mut.Timestamp.IsZero() {
		mut.Timestamp = time.Now()
	}
	m.mu.Lock()
	subs := make([]func(host.Mutation), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(mut)
	}
}

// SubscriberCount reports how many subscriptions are active.
func (m *Mutations) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// State is a fake StateReader with settable fields and per-field error
// injection.
type State struct {
	mu sync.Mutex

	Panel      bool
	Indicator  bool
	Regions    []types.HighlightRegion
	Metrics    types.DocMetrics
	FailFields map[string]error // field name -> injected error
}

// NewState creates a fake state reader with all fields neutral.
func NewState() *State {
	return &State{FailFields: make(map[string]error)}
}

// Set updates state under lock; fn receives the fake for mutation.
func (s *State) Set(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *State) fieldErr(name string) error {
	if err, ok := s.FailFields[name]; ok {
		return err
	}
	return nil
}

func (s *State) PanelVisible() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fieldErr("panel"); err != nil {
		return false, err
	}
	return s.Panel, nil
}

func (s *State) IndicatorActive() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fieldErr("indicator"); err != nil {
		return false, err
	}
	return s.Indicator, nil
}

func (s *State) Highlights() ([]types.HighlightRegion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fieldErr("highlights"); err != nil {
		return nil, err
	}
	return append([]types.HighlightRegion(nil), s.Regions...), nil
}

func (s *State) DocumentMetrics() (types.DocMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fieldErr("metrics"); err != nil {
		return types.DocMetrics{}, err
	}
	return s.Metrics, nil
}

// Probes builds a ProbeSet over settable booleans.
type Probes struct {
	mu     sync.Mutex
	values map[string]bool
	errs   map[string]error
}

// NewProbes creates a probe set where every listed probe reports true.
func NewProbes(names ...string) *Probes {
	p := &Probes{values: make(map[string]bool), errs: make(map[string]error)}
	for _, n := range names {
		p.values[n] = true
	}
	return p
}

// SetProbe sets a probe's result.
func (p *Probes) SetProbe(name string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = ok
}

// SetProbeErr makes a probe return an error.
func (p *Probes) SetProbeErr(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[name] = err
}

// Set returns the host.ProbeSet view of the fake.
func (p *Probes) Set() host.ProbeSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := make(host.ProbeSet, len(p.values))
	for name := range p.values {
		n := name
		set[n] = func() (bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if err := p.errs[n]; err != nil {
				return false, err
			}
			return p.values[n], nil
		}
	}
	return set
}
