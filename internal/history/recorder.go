// Package history implements a server-side history module for process
// variables. Every input selected by tag or added from a device catalog is
// paired with fixed-capacity ring buffers, one per element, that are
// published back into the PV graph and advance on every incoming sample.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/metrics"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
)

// Default configuration values, fixed at construction.
const (
	DefaultHistoryLength = 1200
	DefaultHistoryTag    = "history"
	DefaultPrefix        = "History"
	DefaultModuleName    = "ServerHistory"
)

// Options configures a Recorder. All fields are immutable after New.
type Options struct {
	// HistoryLength is the capacity of every ring buffer.
	HistoryLength int
	// HistoryTag selects which process variables are picked up by the
	// neighbour-directory scan.
	HistoryTag string
	// EnableTimeStamps adds a parallel ring buffer per element holding the
	// wall-clock seconds of each update.
	EnableTimeStamps bool
	// Prefix is the directory prepended to every generated output name.
	Prefix string
	// ModuleName is the recorder's own name and the root of the tag put on
	// generated outputs.
	ModuleName string
	// OnUpdate, if set, is called from the update loop after all outputs
	// for one fired input have been published. It must not block.
	OnUpdate func(inputName string)
}

func (o Options) withDefaults() Options {
	if o.HistoryLength <= 0 {
		o.HistoryLength = DefaultHistoryLength
	}
	if o.HistoryTag == "" {
		o.HistoryTag = DefaultHistoryTag
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.ModuleName == "" {
		o.ModuleName = DefaultModuleName
	}
	return o
}

// Recorder maintains history ring buffers for a set of process variables.
// Registration happens at construction and through AddSource, strictly
// before Run; the update loop is the only writer of ring contents.
type Recorder struct {
	logger *zap.Logger
	model  *pv.Model
	opts   Options

	internalTag string

	mu      sync.Mutex
	running bool
	buckets map[pv.ValueType][]updater
	byID    map[pv.ElementID]updater
	names   map[string]struct{}
	order   []updater
}

// New constructs a Recorder owned by the given directory and auto-discovers
// inputs: the owner's directory tree is scanned breadth-first and every
// process variable carrying the history tag is registered. A nil owner
// fails with ErrPathNotFound. Discovering nothing is not an error; device
// sources may still be added before Run.
func New(logger *zap.Logger, model *pv.Model, owner *pv.Directory, opts Options) (*Recorder, error) {
	opts = opts.withDefaults()
	r := &Recorder{
		logger:  logger,
		model:   model,
		opts:    opts,
		buckets: make(map[pv.ValueType][]updater),
		byID:    make(map[pv.ElementID]updater),
		names:   make(map[string]struct{}),
	}
	r.internalTag = opts.ModuleName + "_internal"
	if opts.ModuleName == opts.HistoryTag {
		// The plain internal tag would equal the discovery tag and the
		// generated outputs would be re-registered as inputs on the next
		// scan.
		r.internalTag += "_module"
	}

	if owner == nil {
		return nil, fmt.Errorf("history module %q: %w", opts.ModuleName, ErrPathNotFound)
	}
	err := owner.VisitVariablesBFS(opts.HistoryTag, func(v *pv.Variable) error {
		return r.addVariableFromModel(v, "/", true)
	})
	if err != nil {
		return nil, err
	}
	if len(r.names) == 0 {
		logger.Info("No variables discovered automatically; device sources may still be added",
			zap.String("module", opts.ModuleName),
			zap.String("tag", opts.HistoryTag))
	}
	metrics.SetRegisteredVariables(len(r.names))
	return r, nil
}

// InternalTag returns the tag attached to every generated output.
func (r *Recorder) InternalTag() string {
	return r.internalTag
}

// Running reports whether the update loop has started.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// GetNumberOfVariables returns the count of registered inputs.
func (r *Recorder) GetNumberOfVariables() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// AddSource registers every process variable of the device catalog, or
// only those below submodule when it is non-empty. No tag check is applied.
// It must be called before Run.
func (r *Recorder) AddSource(device *pv.Device, submodule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := normalizeSubmodule(submodule)
	err := device.Catalog().VisitVariables(func(v *pv.Variable) error {
		return r.addVariableFromModel(v, sub, false)
	})
	if err != nil {
		return fmt.Errorf("add source %q: %w", device.Name(), err)
	}
	metrics.SetRegisteredVariables(len(r.names))
	return nil
}

// addVariableFromModel registers one discovered process variable. Tag and
// submodule mismatches skip silently; everything else goes through the
// registrar.
func (r *Recorder) addVariableFromModel(v *pv.Variable, submodule string, checkTag bool) error {
	name := v.Path()
	if checkTag && !v.HasTag(r.opts.HistoryTag) {
		return nil
	}
	if submodule != "/" && !strings.HasPrefix(name, submodule+"/") {
		return nil
	}
	r.logger.Debug("Registering history variable",
		zap.String("name", name),
		zap.String("type", v.ValueType().String()),
		zap.Int("elements", v.Elements()))
	return r.register(name, v.Elements(), v.ValueType())
}

// Prepare publishes initial values on every output under a raised
// data-fault flag. It fails with ErrEmptyHistory when nothing was
// registered.
func (r *Recorder) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.names) == 0 {
		return fmt.Errorf("history module %q: %w (check the tag, or connect a device)", r.opts.ModuleName, ErrEmptyHistory)
	}
	fault := r.model.DataFault()
	fault.Increment()
	metrics.SetDataFault(fault.Count())
	for _, e := range r.order {
		e.writeInitial()
	}
	fault.Decrement()
	metrics.SetDataFault(fault.Count())
	r.logger.Info("History module prepared",
		zap.String("module", r.opts.ModuleName),
		zap.Int("variables", len(r.names)),
		zap.Int("historyLength", r.opts.HistoryLength))
	return nil
}

// Run executes the update loop until ctx is cancelled. It builds a
// read-any group over all registered inputs and, per fired input, advances
// that input's ring buffers. Exactly one goroutine may call Run; further
// registration is rejected once it started.
func (r *Recorder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("history module %q: %w", r.opts.ModuleName, ErrAlreadyRunning)
	}
	r.running = true
	inputs := make([]pv.PushInput, 0, len(r.order))
	for _, e := range r.order {
		inputs = append(inputs, e.pushInput())
	}
	r.mu.Unlock()

	group := pv.NewReadAnyGroup(inputs...)
	for {
		id, err := group.ReadAny(ctx)
		if err != nil {
			// Terminal status from the multiplexer: stop without further
			// publishing.
			return err
		}
		entry, ok := r.byID[id]
		if !ok {
			continue
		}
		start := time.Now()
		entry.update(uint64(time.Now().Unix()))
		metrics.ObserveHistoryUpdate(entry.valueType().String(), time.Since(start))
		if r.opts.OnUpdate != nil {
			r.opts.OnUpdate(entry.name())
		}
	}
}

// VariableInfo describes one registered input and its generated outputs.
type VariableInfo struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Elements   int      `json:"elements"`
	Outputs    []string `json:"outputs"`
	TimeStamps []string `json:"timeStamps,omitempty"`
}

// Variables lists the registered inputs in registration order.
func (r *Recorder) Variables() []VariableInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]VariableInfo, 0, len(r.order))
	for _, e := range r.order {
		infos = append(infos, variableInfo(e))
	}
	return infos
}

// Variable returns the info for one registered input by its fully
// qualified name.
func (r *Recorder) Variable(name string) (VariableInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.order {
		if e.name() == name {
			return variableInfo(e), true
		}
	}
	return VariableInfo{}, false
}

func variableInfo(e updater) VariableInfo {
	return VariableInfo{
		Name:       e.name(),
		Type:       e.valueType().String(),
		Elements:   e.elements(),
		Outputs:    e.outputPaths(),
		TimeStamps: e.timeStampPaths(),
	}
}

// joinPath prepends the output prefix to a fully qualified variable name.
func joinPath(prefix, name string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return prefix + name
}

// normalizeSubmodule maps the empty submodule to the catalog root and
// guarantees a leading slash otherwise.
func normalizeSubmodule(submodule string) string {
	if submodule == "" || submodule == "/" {
		return "/"
	}
	if !strings.HasPrefix(submodule, "/") {
		submodule = "/" + submodule
	}
	return strings.TrimSuffix(submodule, "/")
}
