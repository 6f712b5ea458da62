// Package pv implements an in-memory process-variable graph: a tree of
// directories whose leaves are typed, tagged variables, plus the accessor
// and multiplexing primitives application modules use to read and publish
// them. It is the host side of the recorder; it carries no control-system
// bridge of its own.
package pv

import (
	"fmt"
	"strings"
	"sync"
)

// Model is the root of a process-variable graph. All structural mutation
// (creating directories and variables, binding accessors) is expected to
// happen during application setup; reads and posts are safe for concurrent
// use afterwards.
type Model struct {
	mu   sync.RWMutex
	root *Directory

	subMu sync.Mutex
	subs  map[int]chan PublishEvent
	nextSub int

	fault *DataFaultCounter
}

// NewModel creates an empty process-variable graph.
func NewModel() *Model {
	m := &Model{
		subs:  make(map[int]chan PublishEvent),
		fault: &DataFaultCounter{},
	}
	m.root = &Directory{model: m, name: "", dirs: make(map[string]*Directory), vars: make(map[string]*Variable)}
	return m
}

// Root returns the root directory of the graph.
func (m *Model) Root() *Directory {
	return m.root
}

// DataFault returns the process-wide data-fault counter of this graph.
func (m *Model) DataFault() *DataFaultCounter {
	return m.fault
}

// Directory is an inner node of the graph. Children keep their insertion
// order so traversals are deterministic.
type Directory struct {
	model  *Model
	parent *Directory
	name   string

	dirs     map[string]*Directory
	dirOrder []string
	vars     map[string]*Variable
	varOrder []string
}

// Name returns the last path segment of the directory.
func (d *Directory) Name() string {
	return d.name
}

// Path returns the fully qualified path of the directory. The root is "/".
func (d *Directory) Path() string {
	if d.parent == nil {
		return "/"
	}
	parent := d.parent.Path()
	if parent == "/" {
		return "/" + d.name
	}
	return parent + "/" + d.name
}

// Variable is a leaf of the graph: a typed, named signal with a fixed
// element count and zero or more tags.
type Variable struct {
	model     *Model
	dir       *Directory
	name      string
	valueType ValueType
	elements  int

	tags   map[string]struct{}
	inputs []inputSink
	last   any
}

// Path returns the fully qualified path of the variable.
func (v *Variable) Path() string {
	dir := v.dir.Path()
	if dir == "/" {
		return "/" + v.name
	}
	return dir + "/" + v.name
}

// ValueType returns the element type of the variable.
func (v *Variable) ValueType() ValueType {
	return v.valueType
}

// Elements returns the fixed element count of the variable.
func (v *Variable) Elements() int {
	return v.elements
}

// HasTag reports whether the variable carries the given tag.
func (v *Variable) HasTag(tag string) bool {
	v.model.mu.RLock()
	defer v.model.mu.RUnlock()
	_, ok := v.tags[tag]
	return ok
}

// Tags returns a copy of the variable's tag set.
func (v *Variable) Tags() []string {
	v.model.mu.RLock()
	defer v.model.mu.RUnlock()
	tags := make([]string, 0, len(v.tags))
	for tag := range v.tags {
		tags = append(tags, tag)
	}
	return tags
}

func (v *Variable) addTags(tags []string) {
	v.model.mu.Lock()
	defer v.model.mu.Unlock()
	for _, tag := range tags {
		if tag != "" {
			v.tags[tag] = struct{}{}
		}
	}
}

func (v *Variable) addSink(s inputSink) {
	v.model.mu.Lock()
	defer v.model.mu.Unlock()
	v.inputs = append(v.inputs, s)
}

// inputSink receives posted samples on behalf of a bound push input.
type inputSink interface {
	deliver(values any)
}

// splitPath validates an absolute path and returns its segments.
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q is not absolute", path)
	}
	var segs []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s == "" {
			return nil, fmt.Errorf("path %q contains an empty segment", path)
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("path %q does not name a variable", path)
	}
	return segs, nil
}

// EnsureDirectory creates the directory at path, creating intermediate
// directories as needed, and returns it.
func (m *Model) EnsureDirectory(path string) (*Directory, error) {
	if path == "/" {
		return m.root, nil
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureDirLocked(segs)
}

func (m *Model) ensureDirLocked(segs []string) (*Directory, error) {
	d := m.root
	for _, seg := range segs {
		if _, taken := d.vars[seg]; taken {
			return nil, fmt.Errorf("%q already names a variable in %q", seg, d.Path())
		}
		next, ok := d.dirs[seg]
		if !ok {
			next = &Directory{model: m, parent: d, name: seg, dirs: make(map[string]*Directory), vars: make(map[string]*Variable)}
			d.dirs[seg] = next
			d.dirOrder = append(d.dirOrder, seg)
		}
		d = next
	}
	return d, nil
}

// CreateVariable creates a process variable at the given absolute path.
// Intermediate directories are created as needed. Creating a variable at
// an occupied path fails.
func (m *Model) CreateVariable(path string, valueType ValueType, elements int, tags ...string) (*Variable, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if elements < 1 {
		return nil, fmt.Errorf("variable %q: element count %d out of range", path, elements)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dir, err := m.ensureDirLocked(segs[:len(segs)-1])
	if err != nil {
		return nil, err
	}
	name := segs[len(segs)-1]
	if _, ok := dir.vars[name]; ok {
		return nil, fmt.Errorf("process variable %q already exists", path)
	}
	if _, ok := dir.dirs[name]; ok {
		return nil, fmt.Errorf("%q already names a directory", path)
	}
	v := &Variable{
		model:     m,
		dir:       dir,
		name:      name,
		valueType: valueType,
		elements:  elements,
		tags:      make(map[string]struct{}),
	}
	for _, tag := range tags {
		if tag != "" {
			v.tags[tag] = struct{}{}
		}
	}
	dir.vars[name] = v
	dir.varOrder = append(dir.varOrder, name)
	return v, nil
}

// Lookup returns the variable at the given path.
func (m *Model) Lookup(path string) (*Variable, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := d.dirs[seg]
		if !ok {
			return nil, false
		}
		d = next
	}
	v, ok := d.vars[segs[len(segs)-1]]
	return v, ok
}

// LookupDirectory returns the directory at the given path.
func (m *Model) LookupDirectory(path string) (*Directory, bool) {
	if path == "/" {
		return m.root, true
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.root
	for _, seg := range segs {
		next, ok := d.dirs[seg]
		if !ok {
			return nil, false
		}
		d = next
	}
	return d, true
}

// ReadArray returns the last value published or posted on the variable at
// path. The returned slice is shared and must not be mutated.
func (m *Model) ReadArray(path string) (any, bool) {
	v, ok := m.Lookup(path)
	if !ok {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return v.last, v.last != nil
}

// Read returns the last value of the variable at path as a typed slice.
func Read[T Element](m *Model, path string) ([]T, bool) {
	raw, ok := m.ReadArray(path)
	if !ok {
		return nil, false
	}
	vals, ok := raw.([]T)
	return vals, ok
}

// Post feeds a new sample into the variable at path. The value must be a
// slice matching the variable's element type and count. Bound push inputs
// receive the sample and their read-any group fires.
func (m *Model) Post(path string, values any) error {
	v, ok := m.Lookup(path)
	if !ok {
		return fmt.Errorf("process variable %q not found", path)
	}
	checked, err := checkValues(v.valueType, v.elements, values)
	if err != nil {
		return fmt.Errorf("post to %q: %w", path, err)
	}
	m.mu.Lock()
	v.last = checked
	sinks := make([]inputSink, len(v.inputs))
	copy(sinks, v.inputs)
	m.mu.Unlock()
	// Delivery happens outside the model lock; a full event queue must not
	// stall unrelated readers.
	for _, s := range sinks {
		s.deliver(checked)
	}
	return nil
}

// publish records an output write: it becomes the variable's last value and
// is fanned out to publish subscribers.
func (m *Model) publish(v *Variable, values any) {
	m.mu.Lock()
	v.last = values
	m.mu.Unlock()
	m.notifyPublish(PublishEvent{Path: v.Path(), Values: values})
}

// PublishEvent describes a single output write in the graph.
type PublishEvent struct {
	Path   string
	Values any
}

// SubscribePublishes registers a subscriber for output writes. Events are
// dropped for subscribers that fall behind. The returned function cancels
// the subscription.
func (m *Model) SubscribePublishes(buffer int) (<-chan PublishEvent, func()) {
	ch := make(chan PublishEvent, buffer)
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()
	cancel := func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Model) notifyPublish(ev PublishEvent) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// VisitVariables walks the directory tree under d in insertion order,
// directories before their children, calling fn for every variable. A
// non-nil error from fn aborts the walk.
func (d *Directory) VisitVariables(fn func(*Variable) error) error {
	return d.visitBFS("", fn)
}

// VisitVariablesBFS walks the directory tree under d breadth-first,
// visiting only variables that carry the given tag.
func (d *Directory) VisitVariablesBFS(keepTag string, fn func(*Variable) error) error {
	return d.visitBFS(keepTag, fn)
}

func (d *Directory) visitBFS(keepTag string, fn func(*Variable) error) error {
	type visit struct {
		vars []*Variable
		dirs []*Directory
	}
	snapshot := func(dir *Directory) visit {
		dir.model.mu.RLock()
		defer dir.model.mu.RUnlock()
		var s visit
		for _, name := range dir.varOrder {
			v := dir.vars[name]
			if keepTag != "" {
				if _, ok := v.tags[keepTag]; !ok {
					continue
				}
			}
			s.vars = append(s.vars, v)
		}
		for _, name := range dir.dirOrder {
			s.dirs = append(s.dirs, dir.dirs[name])
		}
		return s
	}
	queue := []*Directory{d}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		s := snapshot(dir)
		for _, v := range s.vars {
			if err := fn(v); err != nil {
				return err
			}
		}
		queue = append(queue, s.dirs...)
	}
	return nil
}
