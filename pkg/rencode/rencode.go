// Package rencode implements the compact type-prefixed serialization used by
// the Deluge daemon RPC protocol.
package rencode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

const (
	chrList    = 59
	chrDict    = 60
	chrInt     = 61
	chrInt1    = 62
	chrInt2    = 63
	chrInt4    = 64
	chrInt8    = 65
	chrFloat32 = 66
	chrFloat64 = 44
	chrTrue    = 67
	chrFalse   = 68
	chrNone    = 69
	chrTerm    = 127

	intPosFixedStart = 0
	intPosFixedCount = 44
	dictFixedStart   = 102
	dictFixedCount   = 25
	intNegFixedStart = 70
	intNegFixedCount = 32
	strFixedStart    = 128
	strFixedCount    = 64
	listFixedStart   = strFixedStart + strFixedCount
	listFixedCount   = 64
)

// ErrTruncated is returned when the input ends inside a value.
var ErrTruncated = errors.New("rencode: truncated input")

// Marshal encodes v. Supported values are nil, bools, integers, floats,
// strings, byte slices, slices and arrays, and maps. Map keys are written in
// sorted order so the output is deterministic.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v reflect.Value) error {
	if !v.IsValid() {
		buf.WriteByte(chrNone)
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			buf.WriteByte(chrNone)
			return nil
		}
		return encode(buf, v.Elem())
	case reflect.Bool:
		if v.Bool() {
			buf.WriteByte(chrTrue)
		} else {
			buf.WriteByte(chrFalse)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		encodeInt(buf, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			buf.WriteByte(chrInt)
			buf.WriteString(strconv.FormatUint(u, 10))
			buf.WriteByte(chrTerm)
			return nil
		}
		encodeInt(buf, int64(u))
	case reflect.Float32:
		buf.WriteByte(chrFloat32)
		_ = binary.Write(buf, binary.BigEndian, float32(v.Float()))
	case reflect.Float64:
		buf.WriteByte(chrFloat64)
		_ = binary.Write(buf, binary.BigEndian, v.Float())
	case reflect.String:
		encodeBytes(buf, []byte(v.String()))
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			encodeBytes(buf, v.Bytes())
			return nil
		}
		n := v.Len()
		if n < listFixedCount {
			buf.WriteByte(byte(listFixedStart + n))
		} else {
			buf.WriteByte(chrList)
		}
		for i := 0; i < n; i++ {
			if err := encode(buf, v.Index(i)); err != nil {
				return err
			}
		}
		if n >= listFixedCount {
			buf.WriteByte(chrTerm)
		}
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		n := len(keys)
		if n < dictFixedCount {
			buf.WriteByte(byte(dictFixedStart + n))
		} else {
			buf.WriteByte(chrDict)
		}
		for _, k := range keys {
			if err := encode(buf, k); err != nil {
				return err
			}
			if err := encode(buf, v.MapIndex(k)); err != nil {
				return err
			}
		}
		if n >= dictFixedCount {
			buf.WriteByte(chrTerm)
		}
	default:
		return errors.Errorf("rencode: unsupported type %s", v.Type())
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, x int64) {
	switch {
	case x >= 0 && x < intPosFixedCount:
		buf.WriteByte(byte(intPosFixedStart + x))
	case x < 0 && x >= -intNegFixedCount:
		buf.WriteByte(byte(intNegFixedStart - 1 - x))
	case x >= math.MinInt8 && x <= math.MaxInt8:
		buf.WriteByte(chrInt1)
		buf.WriteByte(byte(int8(x)))
	case x >= math.MinInt16 && x <= math.MaxInt16:
		buf.WriteByte(chrInt2)
		_ = binary.Write(buf, binary.BigEndian, int16(x))
	case x >= math.MinInt32 && x <= math.MaxInt32:
		buf.WriteByte(chrInt4)
		_ = binary.Write(buf, binary.BigEndian, int32(x))
	default:
		buf.WriteByte(chrInt8)
		_ = binary.Write(buf, binary.BigEndian, x)
	}
}

func encodeBytes(buf *bytes.Buffer, b []byte) {
	if len(b) < strFixedCount {
		buf.WriteByte(byte(strFixedStart + len(b)))
	} else {
		buf.WriteString(strconv.Itoa(len(b)))
		buf.WriteByte(':')
	}
	buf.Write(b)
}

// Unmarshal decodes a single value. Strings decode to string, integers to
// int64, floats to float64, lists to []any and dicts to map[string]any, with
// non-string keys formatted with fmt.Sprint.
func Unmarshal(data []byte) (any, error) {
	d := &decoder{data: data}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, errors.Errorf("rencode: %d trailing bytes", len(d.data)-d.pos)
	}
	return v, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, ErrTruncated
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrTruncated
	}
	return d.data[d.pos], nil
}

func (d *decoder) value() (any, error) {
	b, err := d.take(1)
	if err != nil {
		return nil, err
	}
	c := int(b[0])

	switch {
	case c == chrNone:
		return nil, nil
	case c == chrTrue:
		return true, nil
	case c == chrFalse:
		return false, nil
	case c >= intPosFixedStart && c < intPosFixedStart+intPosFixedCount:
		return int64(c - intPosFixedStart), nil
	case c >= intNegFixedStart && c < intNegFixedStart+intNegFixedCount:
		return int64(intNegFixedStart - 1 - c), nil
	case c == chrInt1:
		raw, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(raw[0])), nil
	case c == chrInt2:
		raw, err := d.take(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case c == chrInt4:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case c == chrInt8:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(raw)), nil
	case c == chrInt:
		end := bytes.IndexByte(d.data[d.pos:], chrTerm)
		if end < 0 {
			return nil, ErrTruncated
		}
		raw, _ := d.take(end + 1)
		n, err := strconv.ParseInt(string(raw[:end]), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "rencode: bad integer")
		}
		return n, nil
	case c == chrFloat32:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case c == chrFloat64:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case c >= strFixedStart && c < strFixedStart+strFixedCount:
		raw, err := d.take(c - strFixedStart)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case c >= '0' && c <= '9':
		colon := bytes.IndexByte(d.data[d.pos:], ':')
		if colon < 0 {
			return nil, ErrTruncated
		}
		n, err := strconv.Atoi(string(d.data[d.pos-1 : d.pos+colon]))
		if err != nil {
			return nil, errors.Wrap(err, "rencode: bad string length")
		}
		d.pos += colon + 1
		raw, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case c >= listFixedStart && c < listFixedStart+listFixedCount:
		return d.list(c-listFixedStart, false)
	case c == chrList:
		return d.list(-1, true)
	case c >= dictFixedStart && c < dictFixedStart+dictFixedCount:
		return d.dict(c-dictFixedStart, false)
	case c == chrDict:
		return d.dict(-1, true)
	}
	return nil, errors.Errorf("rencode: unknown type code %d at offset %d", c, d.pos-1)
}

func (d *decoder) list(n int, terminated bool) ([]any, error) {
	out := []any{}
	for i := 0; terminated || i < n; i++ {
		if terminated {
			c, err := d.peek()
			if err != nil {
				return nil, err
			}
			if c == chrTerm {
				d.pos++
				break
			}
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *decoder) dict(n int, terminated bool) (map[string]any, error) {
	out := map[string]any{}
	for i := 0; terminated || i < n; i++ {
		if terminated {
			c, err := d.peek()
			if err != nil {
				return nil, err
			}
			if c == chrTerm {
				d.pos++
				break
			}
		}
		k, err := d.value()
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			key = fmt.Sprint(k)
		}
		out[key] = v
	}
	return out, nil
}
