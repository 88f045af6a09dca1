package hcl

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	ctyValueType = reflect.TypeOf(cty.Value{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// DecodeArguments evaluates HCL expressions and populates the `arg`-tagged
// fields of the struct target points to. Unknown arguments are rejected.
func (c *Converter) DecodeArguments(ctx context.Context, target any, args map[string]hcl.Expression, evalCtx *hcl.EvalContext) error {
	logger := ctxlog.FromContext(ctx)

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Pointer || structVal.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	structVal = structVal.Elem()

	fields := config.ArgFields(structVal.Type())
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.Name] = struct{}{}
	}
	var unknown []string
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unsupported arguments: %v", unknown)
	}

	for _, f := range fields {
		expr, provided := args[f.Name]
		if !provided {
			if f.Required {
				return fmt.Errorf("missing required argument %q", f.Name)
			}
			continue
		}

		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return diags
		}
		if err := c.decode(val, structVal.Field(f.Index)); err != nil {
			return fmt.Errorf("failed to decode argument '%s': %w", f.Name, err)
		}
	}
	logger.Debug("Decoded action arguments.", "count", len(args))
	return nil
}

// decode is a recursive function that populates a Go value from a cty.Value.
// The target type drives the conversion.
func (c *Converter) decode(val cty.Value, goVal reflect.Value) error {
	goType := goVal.Type()

	// cty.Value targets take the raw value.
	if goType == ctyValueType {
		if val.IsWhollyKnown() {
			goVal.Set(reflect.ValueOf(val))
		}
		return nil
	}

	if !val.IsKnown() || val.IsNull() {
		return nil
	}

	if goType == durationType {
		if val.Type() == cty.Number {
			secs, _ := val.AsBigFloat().Float64()
			if math.IsNaN(secs) || secs < 0 || secs*float64(time.Second) >= math.MaxInt64 {
				return fmt.Errorf("duration of %v seconds is out of range", val.AsBigFloat())
			}
			goVal.SetInt(int64(secs * float64(time.Second)))
			return nil
		}
		str, err := convert.Convert(val, cty.String)
		if err != nil {
			return fmt.Errorf("duration must be a string like \"5s\": %w", err)
		}
		d, err := time.ParseDuration(str.AsString())
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("duration %s must not be negative", str.AsString())
		}
		goVal.SetInt(int64(d))
		return nil
	}

	switch goType.Kind() {
	case reflect.Interface:
		native, err := ctyToNative(val)
		if err != nil {
			return err
		}
		if native != nil {
			goVal.Set(reflect.ValueOf(native))
		}
		return nil

	case reflect.Pointer:
		elem := reflect.New(goType.Elem())
		if err := c.decode(val, elem.Elem()); err != nil {
			return err
		}
		goVal.Set(elem)
		return nil

	case reflect.Struct:
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return fmt.Errorf("type mismatch: cannot decode %s into Go struct %s", val.Type().FriendlyName(), goType)
		}
		for i := 0; i < goType.NumField(); i++ {
			fieldDef := goType.Field(i)
			if !fieldDef.IsExported() {
				continue
			}
			name := fieldDef.Tag.Get("cty")
			if name == "" || name == "-" {
				continue
			}
			var attr cty.Value
			if val.Type().IsObjectType() {
				if !val.Type().HasAttribute(name) {
					continue
				}
				attr = val.GetAttr(name)
			} else {
				key := cty.StringVal(name)
				if !val.HasIndex(key).True() {
					continue
				}
				attr = val.Index(key)
			}
			if err := c.decode(attr, goVal.Field(i)); err != nil {
				return fmt.Errorf("in attribute '%s': %w", name, err)
			}
		}
		return nil

	case reflect.Map:
		return c.decodeMap(val, goVal)

	case reflect.Slice:
		ty := val.Type()
		if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
			// A single value is accepted where a list is expected.
			elem := reflect.New(goType.Elem()).Elem()
			if err := c.decode(val, elem); err != nil {
				return fmt.Errorf("type mismatch: cannot decode %s into Go slice %s: %w", ty.FriendlyName(), goType, err)
			}
			goVal.Set(reflect.Append(reflect.MakeSlice(goType, 0, 1), elem))
			return nil
		}

		newSlice := reflect.MakeSlice(goType, val.LengthInt(), val.LengthInt())
		it := val.ElementIterator()
		for i := 0; it.Next(); i++ {
			_, elemVal := it.Element()
			if err := c.decode(elemVal, newSlice.Index(i)); err != nil {
				return fmt.Errorf("in slice element %d: %w", i, err)
			}
		}
		goVal.Set(newSlice)
		return nil

	default: // Base cases for primitives (string, int, bool, float64, etc.)
		wantType, err := gocty.ImpliedType(goVal.Interface())
		if err != nil {
			return fmt.Errorf("unsupported Go type %s: %w", goType, err)
		}
		converted, err := convert.Convert(val, wantType)
		if err != nil {
			return fmt.Errorf("cannot convert %s to %s: %w", val.Type().FriendlyName(), wantType.FriendlyName(), err)
		}
		return gocty.FromCtyValue(converted, goVal.Addr().Interface())
	}
}

// decodeMap handles the recursive decoding of a cty map or object into a Go
// map keyed by string.
func (c *Converter) decodeMap(val cty.Value, goVal reflect.Value) error {
	ty := val.Type()
	if !ty.IsMapType() && !ty.IsObjectType() {
		return fmt.Errorf("type mismatch: cannot decode %s into Go map %s", ty.FriendlyName(), goVal.Type())
	}

	// Fast path for map[string]any.
	if goVal.Type() == reflect.TypeOf((map[string]any)(nil)) {
		native, err := ctyToNative(val)
		if err != nil {
			return err
		}
		if native != nil {
			goVal.Set(reflect.ValueOf(native))
		}
		return nil
	}

	newMap := reflect.MakeMap(goVal.Type())
	it := val.ElementIterator()
	for it.Next() {
		key, elemVal := it.Element()
		keyStr := key.AsString()
		newElem := reflect.New(goVal.Type().Elem()).Elem()
		if err := c.decode(elemVal, newElem); err != nil {
			return fmt.Errorf("failed to decode map element '%s': %w", keyStr, err)
		}
		newMap.SetMapIndex(reflect.ValueOf(keyStr), newElem)
	}
	goVal.Set(newMap)
	return nil
}

// ctyToNative converts a cty.Value into plain Go values: string, bool,
// int64 or float64, []any and map[string]any.
func ctyToNative(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			native, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			native, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
