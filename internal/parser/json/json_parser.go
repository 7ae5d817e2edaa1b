// Package json decodes JSON payloads into key-ordered records.
//
// It is deliberately simple and conservative:
//
//   - Supports newline-delimited JSON objects:
//     {"_id":1,"name":"a"}
//     {"_id":2,"name":"b"}
//   - Supports a single top-level array of objects when AllowArrays is set
//     (the shape of the raw characters payload).
//   - Preserves top-level key order, because list explosion follows it.
//   - Decodes numbers as json.Number so casts decide the numeric type.
//
// Nested objects below the top level are decoded as records.Record; their
// key order is not significant to the pipeline.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"disneyetl/internal/config"
	"disneyetl/pkg/records"
)

// Options controls decoding.
//
//   - "allow_arrays" (bool): when true, a top-level JSON array of objects
//     is accepted and expanded element by element.
type Options struct {
	AllowArrays bool
}

// FromConfigOptions constructs Options from a generic config.Options map.
func FromConfigOptions(o config.Options) Options {
	return Options{
		AllowArrays: o.Bool("allow_arrays", false),
	}
}

// Decoder reads key-ordered objects from a stream.
type Decoder struct {
	dec *json.Decoder
	opt Options

	// inArray is set once the opening '[' of a top-level array was consumed.
	inArray bool
}

// NewDecoder constructs a Decoder from an io.Reader and Options.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder{dec: d, opt: opt}
}

// Next returns the next top-level object. Non-object top-level values are
// skipped. io.EOF is returned when the stream is exhausted.
func (d *Decoder) Next() (*records.Ordered, error) {
	for {
		if d.inArray {
			if !d.dec.More() {
				if _, err := d.dec.Token(); err != nil {
					return nil, fmt.Errorf("json parser: close array: %w", err)
				}
				d.inArray = false
				continue
			}
			v, err := d.readValue(true)
			if err != nil {
				return nil, err
			}
			o, ok := v.(*records.Ordered)
			if !ok {
				return nil, fmt.Errorf("json parser: array element is %T, want object", v)
			}
			return o, nil
		}

		tok, err := d.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("json parser: decode: %w", err)
		}

		switch tok {
		case json.Delim('{'):
			return d.readObject()
		case json.Delim('['):
			if d.opt.AllowArrays {
				d.inArray = true
				continue
			}
			// Skip the array wholesale; consume until it closes.
			if err := d.skipRest(); err != nil {
				return nil, err
			}
		default:
			// primitive at top level: skip
		}
	}
}

// DecodeAll reads every object from r. A top-level array requires
// opt.AllowArrays; otherwise it is an error, as is a non-object element.
func DecodeAll(r io.Reader, opt Options) ([]*records.Ordered, error) {
	d := NewDecoder(r, opt)

	var out []*records.Ordered
	first := true
	for {
		if first {
			first = false
			tok, err := d.dec.Token()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, nil
				}
				return nil, fmt.Errorf("json parser: decode root: %w", err)
			}
			switch tok {
			case json.Delim('{'):
				o, err := d.readObject()
				if err != nil {
					return nil, err
				}
				out = append(out, o)
			case json.Delim('['):
				if !opt.AllowArrays {
					return nil, fmt.Errorf("json parser: top-level array encountered but allow_arrays=false")
				}
				d.inArray = true
			default:
				return nil, fmt.Errorf("json parser: unsupported top-level JSON type %T", tok)
			}
			continue
		}

		o, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// readValue reads one complete JSON value. When top is true an object is
// returned as *records.Ordered, otherwise as records.Record.
func (d *Decoder) readValue(top bool) (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json parser: decode value: %w", err)
	}
	switch tok {
	case json.Delim('{'):
		o, err := d.readObject()
		if err != nil {
			return nil, err
		}
		if top {
			return o, nil
		}
		return o.Record(), nil
	case json.Delim('['):
		return d.readArray()
	default:
		return tok, nil
	}
}

// readObject reads members after an already consumed '{'.
func (d *Decoder) readObject() (*records.Ordered, error) {
	o := records.NewOrdered()
	for d.dec.More() {
		kt, err := d.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json parser: decode key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("json parser: object key is %T", kt)
		}
		v, err := d.readValue(false)
		if err != nil {
			return nil, err
		}
		o.Set(key, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, fmt.Errorf("json parser: close object: %w", err)
	}
	return o, nil
}

// readArray reads elements after an already consumed '['.
func (d *Decoder) readArray() ([]any, error) {
	out := []any{}
	for d.dec.More() {
		v, err := d.readValue(false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, fmt.Errorf("json parser: close array: %w", err)
	}
	return out, nil
}

// skipRest discards the remainder of an array whose '[' was consumed.
func (d *Decoder) skipRest() error {
	_, err := d.readArray()
	return err
}
