package keygen

import (
	"bytes"
	"encoding"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Hashable lets a type supply its own canonical key bytes.
type Hashable interface {
	HashKey() ([]byte, error)
}

const maxDepth = 64

// Value tags. Distinct kinds never collide even when their payload bytes do.
const (
	tagNil byte = iota + 1
	tagBool
	tagInt
	tagUint
	tagFloat
	tagComplex
	tagString
	tagBytes
	tagList
	tagMap
	tagStruct
	tagPointer
	tagInterface
	tagHashable
	tagBinary
	tagFile
	tagStat
)

var (
	hashableType  = reflect.TypeOf((*Hashable)(nil)).Elem()
	binaryMarshal = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
)

// encoder writes a canonical, type-tagged form of a value.
type encoder struct {
	w      *writer
	param  string
	path   []string
	active map[uintptr]bool
}

func (e *encoder) fail(reason string) error {
	path := make([]string, len(e.path))
	copy(path, e.path)
	return &UnhashableError{Param: e.param, Path: path, Reason: reason}
}

func (e *encoder) push(seg string) { e.path = append(e.path, seg) }
func (e *encoder) pop()            { e.path = e.path[:len(e.path)-1] }

// enter marks a reference as being walked; a second visit on the same path is a cycle.
func (e *encoder) enter(ptr uintptr) bool {
	if e.active == nil {
		e.active = make(map[uintptr]bool)
	}
	if e.active[ptr] {
		return false
	}
	e.active[ptr] = true
	return true
}

func (e *encoder) leave(ptr uintptr) { delete(e.active, ptr) }

func (e *encoder) value(v reflect.Value, depth int) error {
	if depth > maxDepth {
		return e.fail(fmt.Sprintf("nesting deeper than %d levels", maxDepth))
	}
	if !v.IsValid() {
		e.w.putByte(tagNil)
		return nil
	}

	if handled, err := e.custom(v); handled || err != nil {
		return err
	}

	switch v.Kind() {
	case reflect.Bool:
		e.w.putByte(tagBool)
		if v.Bool() {
			e.w.putByte(1)
		} else {
			e.w.putByte(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.w.putByte(tagInt)
		e.w.putVarint(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.w.putByte(tagUint)
		e.w.putUvarint(v.Uint())
	case reflect.Float32, reflect.Float64:
		e.w.putByte(tagFloat)
		e.w.putUint64(floatBits(v.Float()))
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		e.w.putByte(tagComplex)
		e.w.putUint64(floatBits(real(c)))
		e.w.putUint64(floatBits(imag(c)))
	case reflect.String:
		e.w.putByte(tagString)
		e.w.putString(v.String())
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.w.putByte(tagBytes)
			e.w.putBytes(v.Bytes())
			return nil
		}
		if v.Len() > 0 {
			ptr := v.Pointer()
			if !e.enter(ptr) {
				return e.fail("cyclic slice")
			}
			defer e.leave(ptr)
		}
		return e.list(v, depth)
	case reflect.Array:
		return e.list(v, depth)
	case reflect.Map:
		if v.Len() > 0 {
			ptr := v.Pointer()
			if !e.enter(ptr) {
				return e.fail("cyclic map")
			}
			defer e.leave(ptr)
		}
		return e.mapValue(v, depth)
	case reflect.Struct:
		return e.structValue(v, depth)
	case reflect.Pointer:
		if v.IsNil() {
			e.w.putByte(tagNil)
			return nil
		}
		ptr := v.Pointer()
		if !e.enter(ptr) {
			return e.fail("cyclic pointer")
		}
		defer e.leave(ptr)
		e.w.putByte(tagPointer)
		return e.value(v.Elem(), depth+1)
	case reflect.Interface:
		if v.IsNil() {
			e.w.putByte(tagNil)
			return nil
		}
		elem := v.Elem()
		e.w.putByte(tagInterface)
		e.w.putString(elem.Type().String())
		return e.value(elem, depth+1)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr:
		return e.fail(fmt.Sprintf("%s values cannot be hashed", v.Kind()))
	default:
		return e.fail(fmt.Sprintf("unsupported kind %s", v.Kind()))
	}
	return nil
}

// custom uses Hashable or encoding.BinaryMarshaler when the value exposes them.
func (e *encoder) custom(v reflect.Value) (bool, error) {
	if !v.CanInterface() {
		return false, nil
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false, nil
		}
	}
	t := v.Type()
	switch {
	case t.Implements(hashableType):
		b, err := v.Interface().(Hashable).HashKey()
		if err != nil {
			return true, e.fail(fmt.Sprintf("HashKey: %v", err))
		}
		e.w.putByte(tagHashable)
		e.w.putString(t.String())
		e.w.putBytes(b)
		return true, nil
	case t.Implements(binaryMarshal):
		b, err := v.Interface().(encoding.BinaryMarshaler).MarshalBinary()
		if err != nil {
			return true, e.fail(fmt.Sprintf("MarshalBinary: %v", err))
		}
		e.w.putByte(tagBinary)
		e.w.putString(t.String())
		e.w.putBytes(b)
		return true, nil
	}
	return false, nil
}

func (e *encoder) list(v reflect.Value, depth int) error {
	e.w.putByte(tagList)
	e.w.putUvarint(uint64(v.Len()))
	for i := 0; i < v.Len(); i++ {
		e.push(fmt.Sprintf("[%d]", i))
		if err := e.value(v.Index(i), depth+1); err != nil {
			return err
		}
		e.pop()
	}
	return nil
}

type mapEntry struct {
	key   []byte
	label string
	val   reflect.Value
}

// mapValue orders entries by the canonical bytes of their keys.
func (e *encoder) mapValue(v reflect.Value, depth int) error {
	entries := make([]mapEntry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var buf bytes.Buffer
		sub := &encoder{w: &writer{h: &buf}, param: e.param, path: e.path, active: e.active}
		sub.push("{key}")
		if err := sub.value(iter.Key(), depth+1); err != nil {
			return err
		}
		entries = append(entries, mapEntry{
			key:   buf.Bytes(),
			label: fmt.Sprintf("[%v]", iter.Key()),
			val:   iter.Value(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	e.w.putByte(tagMap)
	e.w.putUvarint(uint64(len(entries)))
	for _, entry := range entries {
		e.w.putBytes(entry.key)
		e.push(entry.label)
		if err := e.value(entry.val, depth+1); err != nil {
			return err
		}
		e.pop()
	}
	return nil
}

func (e *encoder) structValue(v reflect.Value, depth int) error {
	t := v.Type()
	e.w.putByte(tagStruct)
	e.w.putString(t.String())
	e.w.putUvarint(uint64(t.NumField()))
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		e.w.putString(field.Name)
		e.push("." + field.Name)
		if err := e.value(v.Field(i), depth+1); err != nil {
			return err
		}
		e.pop()
	}
	return nil
}

// floatBits folds -0 into 0 and every NaN into one pattern.
func floatBits(f float64) uint64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return 0x7ff8000000000001
	default:
		return math.Float64bits(f)
	}
}
