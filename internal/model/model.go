// Package model describes the data-model boundary the datastore core reads:
// model descriptors, their properties, and instances that can project
// themselves into plain objects.
package model

import (
	"context"
	"errors"
	"sort"
)

// Kind is the declared type of a model property.
type Kind string

const (
	KindArray          Kind = "Array"
	KindText           Kind = "Text"
	KindBigText        Kind = "BigText"
	KindBoolean        Kind = "Boolean"
	KindDate           Kind = "Date"
	KindDatetime       Kind = "Datetime"
	KindEmail          Kind = "Email"
	KindInteger        Kind = "Integer"
	KindModelReference Kind = "ModelReference"
	KindNumber         Kind = "Number"
	KindObject         Kind = "Object"
	KindUniqueID       Kind = "UniqueId"
)

// Kinds lists every supported property kind.
var Kinds = []Kind{
	KindArray, KindText, KindBigText, KindBoolean, KindDate, KindDatetime,
	KindEmail, KindInteger, KindModelReference, KindNumber, KindObject, KindUniqueID,
}

// ErrUnknownModel is returned when a catalog has no model for a key.
var ErrUnknownModel = errors.New("unknown model")

// Property is a single property definition of a model.
type Property struct {
	Kind        Kind     `json:"kind" yaml:"kind"`
	Required    bool     `json:"required,omitempty" yaml:"required"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Choices     []string `json:"choices,omitempty" yaml:"choices"` // enum values, in order
}

// Descriptor is a read-only view of a model definition.
type Descriptor struct {
	Namespace  string              `json:"namespace" yaml:"namespace"`
	PluralName string              `json:"pluralName" yaml:"pluralName"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
}

// Key identifies the model inside a catalog ("namespace/PluralName").
func (d Descriptor) Key() string {
	return d.Namespace + "/" + d.PluralName
}

// PropertyNames returns the property names in sorted order.
func (d Descriptor) PropertyNames() []string {
	names := make([]string, 0, len(d.Properties))
	for name := range d.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredNames returns the names of required properties in sorted order.
func (d Descriptor) RequiredNames() []string {
	var names []string
	for _, name := range d.PropertyNames() {
		if d.Properties[name].Required {
			names = append(names, name)
		}
	}
	return names
}

// Instance is a model instance owned by the data-model layer.
type Instance interface {
	// Model returns the descriptor of the instance's model.
	Model() Descriptor

	// ToObject projects the instance into a JSON-compatible object.
	ToObject(ctx context.Context) (map[string]any, error)
}

// Record is a map-backed Instance.
type Record struct {
	desc   Descriptor
	values map[string]any
}

// NewRecord creates a Record for the given model. values is copied.
func NewRecord(desc Descriptor, values map[string]any) *Record {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Record{desc: desc, values: cp}
}

func (r *Record) Model() Descriptor { return r.desc }

func (r *Record) ToObject(_ context.Context) (map[string]any, error) {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}
