package history

import (
	"fmt"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
)

// HistoryEntry holds the accessors of one registered input: the push input
// itself, one data ring buffer per element, and optionally one timestamp
// ring buffer per element.
type HistoryEntry[T pv.Element] struct {
	input          *pv.ArrayPushInput[T]
	data           []*pv.ArrayOutput[T]
	timeStamp      []*pv.ArrayOutput[uint64]
	withTimeStamps bool
}

// updater is the untyped view of a HistoryEntry as needed by the update
// engine and the API surface.
type updater interface {
	update(nowSeconds uint64)
	writeInitial()
	id() pv.ElementID
	pushInput() pv.PushInput
	name() string
	valueType() pv.ValueType
	elements() int
	outputPaths() []string
	timeStampPaths() []string
}

func (e *HistoryEntry[T]) id() pv.ElementID {
	return e.input.ID()
}

func (e *HistoryEntry[T]) pushInput() pv.PushInput {
	return e.input
}

func (e *HistoryEntry[T]) name() string {
	return e.input.Path()
}

func (e *HistoryEntry[T]) valueType() pv.ValueType {
	return pv.TypeOf[T]()
}

func (e *HistoryEntry[T]) elements() int {
	return e.input.Elements()
}

func (e *HistoryEntry[T]) outputPaths() []string {
	paths := make([]string, len(e.data))
	for i, out := range e.data {
		paths[i] = out.Path()
	}
	return paths
}

func (e *HistoryEntry[T]) timeStampPaths() []string {
	if !e.withTimeStamps {
		return nil
	}
	paths := make([]string, len(e.timeStamp))
	for i, out := range e.timeStamp {
		paths[i] = out.Path()
	}
	return paths
}

// update advances the entry's ring buffers by one position with the sample
// pending on the input. Buffers shift left; the freshest value sits at the
// tail. Data is published per element before its timestamp.
func (e *HistoryEntry[T]) update(nowSeconds uint64) {
	values := e.input.Pop()
	if values == nil {
		return
	}
	for i, out := range e.data {
		buf := out.Buffer()
		copy(buf, buf[1:])
		buf[len(buf)-1] = values[i]
		out.Write()
		if e.withTimeStamps {
			ts := e.timeStamp[i]
			tsBuf := ts.Buffer()
			copy(tsBuf, tsBuf[1:])
			tsBuf[len(tsBuf)-1] = nowSeconds
			ts.Write()
		}
	}
}

// writeInitial publishes the untouched buffers so downstream readers see a
// well-formed shape before the first real update.
func (e *HistoryEntry[T]) writeInitial() {
	for i, out := range e.data {
		out.Write()
		if e.withTimeStamps {
			e.timeStamp[i].Write()
		}
	}
}

// register dispatches on the element type tag and invokes the typed
// registrar for the matching concrete type. Exactly one instantiation runs
// per call; tags outside the recognized set fail with ErrUnsupportedType.
// 64-bit integers exist in the PV graph (timestamp buffers use them) but
// are not part of the recognized input set.
func (r *Recorder) register(name string, elements int, valueType pv.ValueType) error {
	if r.running {
		return fmt.Errorf("cannot register %q: %w", name, ErrAlreadyRunning)
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("variable %q: %w", name, ErrDuplicateName)
	}
	switch valueType {
	case pv.Int8:
		return registerTyped[int8](r, name, elements)
	case pv.UInt8:
		return registerTyped[uint8](r, name, elements)
	case pv.Int16:
		return registerTyped[int16](r, name, elements)
	case pv.UInt16:
		return registerTyped[uint16](r, name, elements)
	case pv.Int32:
		return registerTyped[int32](r, name, elements)
	case pv.UInt32:
		return registerTyped[uint32](r, name, elements)
	case pv.Float32:
		return registerTyped[float32](r, name, elements)
	case pv.Float64:
		return registerTyped[float64](r, name, elements)
	case pv.String:
		return registerTyped[string](r, name, elements)
	default:
		return fmt.Errorf("variable %q has element type %s: %w", name, valueType, ErrUnsupportedType)
	}
}

// registerTyped creates the input accessor and the per-element history
// outputs for one variable and files the entry into its typed bucket.
// Recorder state is only touched once every accessor exists, so a failed
// registration leaves no partial entry behind.
func registerTyped[T pv.Element](r *Recorder, name string, elements int) error {
	historyName := joinPath(r.opts.Prefix, name)

	input, err := pv.NewArrayPushInput[T](r.model, name, elements, r.internalTag)
	if err != nil {
		return fmt.Errorf("history input %q: %w", name, err)
	}
	entry := &HistoryEntry[T]{input: input, withTimeStamps: r.opts.EnableTimeStamps}
	for i := 0; i < elements; i++ {
		outName := historyName
		if elements > 1 {
			outName = fmt.Sprintf("%s_%d", historyName, i)
		}
		data, err := pv.NewArrayOutput[T](r.model, outName, r.opts.HistoryLength, r.internalTag)
		if err != nil {
			return fmt.Errorf("history output %q: %w", outName, err)
		}
		entry.data = append(entry.data, data)
		if r.opts.EnableTimeStamps {
			ts, err := pv.NewArrayOutput[uint64](r.model, outName+"_timeStamps", r.opts.HistoryLength, r.internalTag)
			if err != nil {
				return fmt.Errorf("history timestamp output %q: %w", outName, err)
			}
			entry.timeStamp = append(entry.timeStamp, ts)
		}
	}

	bucket := pv.TypeOf[T]()
	r.buckets[bucket] = append(r.buckets[bucket], entry)
	r.byID[input.ID()] = entry
	r.order = append(r.order, entry)
	r.names[name] = struct{}{}
	return nil
}
