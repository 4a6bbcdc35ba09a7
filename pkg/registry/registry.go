// Package registry maps format identifiers to detection rules and parser
// constructors.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ccollicutt/logsniff/pkg/parser"
)

// Stage is the detection stage a format rule takes part in.
type Stage int

const (
	// StageExtension matches on the source name suffix.
	StageExtension Stage = iota + 1
	// StageSignature matches on leading magic bytes.
	StageSignature
	// StageStructural matches anchored patterns on the first sampled line.
	StageStructural
	// StageContent matches self-describing documents on the first sampled line.
	StageContent
	// StageKeyword scores keyword hits over all sampled lines.
	StageKeyword
	// StageForced marks a format chosen by the caller instead of detected.
	StageForced
)

func (s Stage) String() string {
	switch s {
	case StageExtension:
		return "extension"
	case StageSignature:
		return "signature"
	case StageStructural:
		return "structural"
	case StageContent:
		return "content"
	case StageKeyword:
		return "keyword"
	case StageForced:
		return "forced"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MarshalText renders the stage name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	v, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStage converts a stage name.
func ParseStage(name string) (Stage, error) {
	for s := StageExtension; s <= StageForced; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown detection stage %q", name)
}

// Rule tells the detector how to recognize a format.
type Rule struct {
	// Stage is the primary stage of the format. Extensions are always
	// consulted in the extension stage regardless of Stage.
	Stage Stage

	// Extensions lists source suffixes (".csv") mapped to the format.
	Extensions []string

	// Sample, when set, must also accept the sample for an extension match.
	Sample func(sample []byte) bool

	// Signature matches the raw sample in the signature stage.
	Signature func(sample []byte) bool

	// Line matches one sampled line in the structural, content and keyword
	// stages.
	Line func(line string) bool
}

// Descriptor describes one registered format. Descriptors are immutable once
// registered.
type Descriptor struct {
	ID          string
	Description string
	Family      parser.Family

	// Sequential forces single-threaded parsing: the parser keeps state
	// across chunks (headers, brackets, frames).
	Sequential bool

	Rule Rule

	// Priority orders formats within a stage; lower goes first. Zero places
	// the format after every prioritized one, in registration order.
	Priority int

	// TimestampFields names the fields to normalize. When empty, fields are
	// picked by name.
	TimestampFields []string

	// TimestampHint is a layout or a named timestamp format tried first.
	TimestampHint string

	// New creates a parser for one source.
	New func() parser.Parser
}

// DuplicateFormatError is returned when an identifier is registered twice.
type DuplicateFormatError struct {
	ID string
}

func (e *DuplicateFormatError) Error() string {
	return fmt.Sprintf("format %q is already registered", e.ID)
}

// UnknownFormatError is returned when an identifier is not registered.
type UnknownFormatError struct {
	ID string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown format %q", e.ID)
}

// ErrFrozen is returned when registering after the registry was frozen.
var ErrFrozen = errors.New("registry is frozen")

type entry struct {
	desc Descriptor
	seq  int
}

// Registry is a table of format descriptors. Writes take a lock until Freeze;
// after that, reads are lock-free.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int

	frozen atomic.Bool
	sorted []Descriptor
	byID   map[string]Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Register adds a descriptor.
func (r *Registry) Register(desc Descriptor) error {
	if desc.ID == "" {
		return errors.New("format identifier is required")
	}
	if desc.New == nil {
		return fmt.Errorf("format %q has no parser constructor", desc.ID)
	}
	if desc.Rule.Stage == 0 {
		desc.Rule.Stage = StageKeyword
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return ErrFrozen
	}
	if _, ok := r.entries[desc.ID]; ok {
		return &DuplicateFormatError{ID: desc.ID}
	}
	r.seq++
	desc.Rule.Extensions = append([]string(nil), desc.Rule.Extensions...)
	desc.TimestampFields = append([]string(nil), desc.TimestampFields...)
	r.entries[desc.ID] = &entry{desc: desc, seq: r.seq}
	return nil
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	if r.frozen.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return
	}
	r.sorted = r.sortedLocked()
	r.byID = make(map[string]Descriptor, len(r.sorted))
	for _, d := range r.sorted {
		r.byID[d.ID] = d
	}
	r.frozen.Store(true)
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Resolve looks up a descriptor by identifier.
func (r *Registry) Resolve(id string) (Descriptor, error) {
	if r.frozen.Load() {
		if d, ok := r.byID[id]; ok {
			return d, nil
		}
		return Descriptor{}, &UnknownFormatError{ID: id}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, &UnknownFormatError{ID: id}
	}
	return e.desc, nil
}

// Descriptors returns all descriptors in detection order: by stage, then
// priority, then registration order.
func (r *Registry) Descriptors() []Descriptor {
	if r.frozen.Load() {
		return append([]Descriptor(nil), r.sorted...)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// Stage returns the descriptors of one stage in detection order.
func (r *Registry) Stage(s Stage) []Descriptor {
	var out []Descriptor
	for _, d := range r.Descriptors() {
		if d.Rule.Stage == s {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered formats.
func (r *Registry) Len() int {
	if r.frozen.Load() {
		return len(r.sorted)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) sortedLocked() []Descriptor {
	list := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.desc.Rule.Stage != b.desc.Rule.Stage {
			return a.desc.Rule.Stage < b.desc.Rule.Stage
		}
		if pa, pb := effectivePriority(a.desc), effectivePriority(b.desc); pa != pb {
			return pa < pb
		}
		return a.seq < b.seq
	})

	out := make([]Descriptor, len(list))
	for i, e := range list {
		out[i] = e.desc
	}
	return out
}

func effectivePriority(d Descriptor) int {
	if d.Priority == 0 {
		return math.MaxInt
	}
	return d.Priority
}
