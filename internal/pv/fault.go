package pv

import "sync/atomic"

// DataFaultCounter flags published data as faulty while it is non-zero.
// Modules raise it around initial-value publication and other phases in
// which outputs do not yet reflect live inputs.
type DataFaultCounter struct {
	n atomic.Int64
}

// Increment raises the fault counter.
func (c *DataFaultCounter) Increment() {
	c.n.Add(1)
}

// Decrement lowers the fault counter. It must pair with a prior Increment.
func (c *DataFaultCounter) Decrement() {
	c.n.Add(-1)
}

// Count returns the current counter value.
func (c *DataFaultCounter) Count() int64 {
	return c.n.Load()
}

// Faulty reports whether any fault flag is currently raised.
func (c *DataFaultCounter) Faulty() bool {
	return c.n.Load() > 0
}
