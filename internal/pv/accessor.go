package pv

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ElementID is the stable, opaque identity of an accessor. It is assigned
// once at creation and never reused within a process.
type ElementID string

func newElementID() ElementID {
	return ElementID(uuid.NewString())
}

// ArrayPushInput is a typed push-input accessor. Samples posted to the
// bound variable are queued here; a ReadAnyGroup signals the accessor's
// ElementID for every queued sample.
type ArrayPushInput[T Element] struct {
	variable *Variable
	id       ElementID
	elements int

	mu     sync.Mutex
	queue  [][]T
	events chan<- ElementID
}

// NewArrayPushInput binds a push input of the given width to the variable
// at path, creating the variable if it does not exist yet. Tags are merged
// into the variable's tag set. Binding fails when the variable exists with
// a different element type or count.
func NewArrayPushInput[T Element](m *Model, path string, elements int, tags ...string) (*ArrayPushInput[T], error) {
	want := TypeOf[T]()
	v, ok := m.Lookup(path)
	if !ok {
		var err error
		v, err = m.CreateVariable(path, want, elements, tags...)
		if err != nil {
			return nil, err
		}
	} else {
		if v.valueType != want {
			return nil, fmt.Errorf("input %q: element type is %s, accessor wants %s", path, v.valueType, want)
		}
		if v.elements != elements {
			return nil, fmt.Errorf("input %q: element count is %d, accessor wants %d", path, v.elements, elements)
		}
		v.addTags(tags)
	}
	in := &ArrayPushInput[T]{
		variable: v,
		id:       newElementID(),
		elements: elements,
	}
	v.addSink(in)
	return in, nil
}

// ID returns the accessor's transfer-element identity.
func (in *ArrayPushInput[T]) ID() ElementID {
	return in.id
}

// Path returns the path of the bound variable.
func (in *ArrayPushInput[T]) Path() string {
	return in.variable.Path()
}

// Elements returns the accessor width.
func (in *ArrayPushInput[T]) Elements() int {
	return in.elements
}

// Pop removes and returns the oldest queued sample, or nil if none is
// pending. After a ReadAnyGroup reported this accessor's ID, exactly one
// sample is guaranteed to be pending.
func (in *ArrayPushInput[T]) Pop() []T {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.queue) == 0 {
		return nil
	}
	vals := in.queue[0]
	in.queue = in.queue[1:]
	return vals
}

// deliver implements inputSink. The sample is already a defensive copy;
// queue entries are read-only from here on.
func (in *ArrayPushInput[T]) deliver(values any) {
	vals, ok := values.([]T)
	if !ok {
		return
	}
	in.mu.Lock()
	in.queue = append(in.queue, vals)
	events := in.events
	in.mu.Unlock()
	if events != nil {
		events <- in.id
	}
}

// attach wires the accessor into a read-any group. Samples queued before
// attachment are announced immediately so none are lost.
func (in *ArrayPushInput[T]) attach(events chan<- ElementID) {
	in.mu.Lock()
	in.events = events
	pending := len(in.queue)
	in.mu.Unlock()
	for i := 0; i < pending; i++ {
		events <- in.id
	}
}

// ArrayOutput is a typed array-output accessor. The owner mutates Buffer
// in place and calls Write to publish; the buffer length is fixed at
// creation and published values never alias it.
type ArrayOutput[T Element] struct {
	model    *Model
	variable *Variable
	id       ElementID
	buf      []T
}

// NewArrayOutput creates the variable at path with the given length and
// tags and returns an output accessor for it. The path must be unused.
func NewArrayOutput[T Element](m *Model, path string, length int, tags ...string) (*ArrayOutput[T], error) {
	v, err := m.CreateVariable(path, TypeOf[T](), length, tags...)
	if err != nil {
		return nil, err
	}
	return &ArrayOutput[T]{
		model:    m,
		variable: v,
		id:       newElementID(),
		buf:      make([]T, length),
	}, nil
}

// ID returns the accessor's transfer-element identity.
func (out *ArrayOutput[T]) ID() ElementID {
	return out.id
}

// Path returns the path of the published variable.
func (out *ArrayOutput[T]) Path() string {
	return out.variable.Path()
}

// Buffer returns the accessor's working buffer. Only the owning goroutine
// may mutate it.
func (out *ArrayOutput[T]) Buffer() []T {
	return out.buf
}

// Write publishes a snapshot of the working buffer.
func (out *ArrayOutput[T]) Write() {
	snapshot := make([]T, len(out.buf))
	copy(snapshot, out.buf)
	out.model.publish(out.variable, snapshot)
}
