package pv

import (
	"fmt"
	"strings"
)

// Device represents a backend exposing a register catalog in the PV graph.
// Registers materialize as process variables under the device directory;
// they carry no tags, so they are only picked up by explicit AddSource
// calls on consuming modules.
type Device struct {
	model *Model
	name  string
	dir   *Directory
}

// NewDevice creates a device with a catalog directory named after it under
// the graph root.
func NewDevice(m *Model, name string) (*Device, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid device name %q", name)
	}
	dir, err := m.EnsureDirectory("/" + name)
	if err != nil {
		return nil, err
	}
	return &Device{model: m, name: name, dir: dir}, nil
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Catalog returns the device's catalog directory.
func (d *Device) Catalog() *Directory {
	return d.dir
}

// AddRegister creates a register of the given type and width in the
// device catalog. The path is relative to the device directory.
func (d *Device) AddRegister(path string, valueType ValueType, elements int) (*Variable, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := d.dir.Path() + path
	return d.model.CreateVariable(full, valueType, elements)
}
