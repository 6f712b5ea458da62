package pv

import "context"

// PushInput is the untyped view of a push-input accessor as needed by the
// read-any multiplexer.
type PushInput interface {
	ID() ElementID
	attach(chan<- ElementID)
}

// ReadAnyGroup multiplexes many push inputs into a single blocking read.
// Events arrive in posting order; one event is delivered per sample.
type ReadAnyGroup struct {
	events chan ElementID
}

// readAnyQueueSize bounds in-flight events across all inputs of a group.
// A full queue blocks posters, which the host absorbs.
const readAnyQueueSize = 1024

// NewReadAnyGroup creates a group over the given inputs. Samples posted
// before the group existed are announced immediately.
func NewReadAnyGroup(inputs ...PushInput) *ReadAnyGroup {
	g := &ReadAnyGroup{events: make(chan ElementID, readAnyQueueSize)}
	for _, in := range inputs {
		in.attach(g.events)
	}
	return g
}

// ReadAny blocks until any input of the group has received a sample and
// returns that input's ElementID. Cancelling the context terminates the
// wait with the context's error.
func (g *ReadAnyGroup) ReadAny(ctx context.Context) (ElementID, error) {
	select {
	case id := <-g.events:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
