// Package jsonwrapper contains a JSON unmarshaler.
package jsonwrapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// differences with respect to the standard package:
// - prevents setting unknown fields
// - prevents setting slices to nil
// - replaces existing slices instead of merging elements

func process(v reflect.Value, raw interface{}, path string) error {
	switch v.Kind() {
	case reflect.Slice:
		if raw == nil {
			return fmt.Errorf("cannot set slice '%s' to nil", path)
		}
		v.Set(reflect.Zero(v.Type()))

	case reflect.Struct:
		rawMap, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}

		vt := v.Type()
		for i := 0; i < v.NumField(); i++ {
			key := vt.Field(i).Tag.Get("json")
			if key == "" || key == "-" {
				continue
			}
			key = strings.Split(key, ",")[0]

			rawVal, ok := rawMap[key]
			if !ok {
				continue
			}

			fieldPath := key
			if path != "" {
				fieldPath = path + "." + key
			}

			err := process(v.Field(i), rawVal, fieldPath)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// Unmarshal decodes JSON.
func Unmarshal(buf []byte, dest interface{}) error {
	return Decode(bytes.NewReader(buf), dest)
}

// Decode decodes JSON.
func Decode(r io.Reader, dest interface{}) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var raw interface{}
	err = json.Unmarshal(buf, &raw)
	if err != nil {
		return err
	}

	err = process(reflect.ValueOf(dest).Elem(), raw, "")
	if err != nil {
		return err
	}

	d := json.NewDecoder(bytes.NewReader(buf))
	d.DisallowUnknownFields()
	return d.Decode(dest)
}
