package datamodel

import (
	"reflect"
	"sync"
)

// Property describes one static, reflected property of a data model type.
type Property struct {
	Name        string
	Type        reflect.Type
	Description Description
	index       []int
}

// Schema is the static property list of a struct type, computed once per type.
type Schema struct {
	Type       reflect.Type
	Properties []Property
	byName     map[string]int
}

// Property returns the static property with the given name.
func (s *Schema) Property(name string) (Property, bool) {
	if s == nil {
		return Property{}, false
	}
	i, ok := s.byName[name]
	if !ok {
		return Property{}, false
	}
	return s.Properties[i], true
}

var (
	schemaCache sync.Map // reflect.Type -> *Schema
	nodeType    = reflect.TypeFor[Node]()
	modelType   = reflect.TypeFor[Model]()
)

// SchemaOf returns the cached schema of t. Pointer types are dereferenced; nil is
// returned for anything that is not a struct.
func SchemaOf(t reflect.Type) *Schema {
	t = structType(t)
	if t == nil {
		return nil
	}
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema)
	}
	s, _ := schemaCache.LoadOrStore(t, buildSchema(t))
	return s.(*Schema)
}

func buildSchema(t reflect.Type) *Schema {
	s := &Schema{Type: t, byName: make(map[string]int)}
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		if f.Tag.Get("datamodel") == "-" {
			continue
		}
		// Fields promoted out of an embedded Node are engine internals.
		if len(f.Index) > 1 && t.FieldByIndex(f.Index[:1]).Type == nodeType {
			continue
		}
		s.byName[f.Name] = len(s.Properties)
		s.Properties = append(s.Properties, Property{
			Name:        f.Name,
			Type:        f.Type,
			Description: describeField(f),
			index:       f.Index,
		})
	}
	return s
}

// structType dereferences pointers and returns t when it is a struct type.
func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// isModelType reports whether values of t carry their own Node.
func isModelType(t reflect.Type) bool {
	return t != nil && t.Implements(modelType)
}
