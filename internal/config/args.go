package config

import (
	"reflect"
	"strings"
)

// ArgTag is the struct tag action inputs use to name their arguments:
//
//	Paths []string `arg:"paths,required"`
const ArgTag = "arg"

// ArgField describes one tagged field of an action input struct.
type ArgField struct {
	Name     string
	Index    int
	Required bool
}

// ArgFields returns the tagged fields of struct type t in declaration order.
// Pointer types are dereferenced; anything else yields nil.
func ArgFields(t reflect.Type) []ArgField {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []ArgField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get(ArgTag), ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, ArgField{
			Name:     name,
			Index:    i,
			Required: opts == "required",
		})
	}
	return fields
}
