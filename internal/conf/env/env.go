// Package env contains a function to load configuration from environment.
package env

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshaler can be implemented to override the unmarshaling process.
type Unmarshaler interface {
	UnmarshalEnv(prefix string, v string) error
}

func loadValue(env map[string]string, key string, rv reflect.Value) error {
	if rv.CanAddr() {
		if u, ok := rv.Addr().Interface().(Unmarshaler); ok {
			if ev, ok2 := env[key]; ok2 {
				err := u.UnmarshalEnv(key, ev)
				if err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
			return nil
		}
	}

	ev, ok := env[key]

	switch rv.Kind() {
	case reflect.String:
		if ok {
			rv.SetString(ev)
		}
		return nil

	case reflect.Int, reflect.Int64:
		if ok {
			iv, err := strconv.ParseInt(ev, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rv.SetInt(iv)
		}
		return nil

	case reflect.Uint, reflect.Uint64:
		if ok {
			iv, err := strconv.ParseUint(ev, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rv.SetUint(iv)
		}
		return nil

	case reflect.Float64:
		if ok {
			fv, err := strconv.ParseFloat(ev, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rv.SetFloat(fv)
		}
		return nil

	case reflect.Bool:
		if ok {
			switch strings.ToLower(ev) {
			case "yes", "true":
				rv.SetBool(true)

			case "no", "false":
				rv.SetBool(false)

			default:
				return fmt.Errorf("%s: invalid value '%s'", key, ev)
			}
		}
		return nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.String {
			if ok {
				if ev == "" {
					rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
				} else {
					rv.Set(reflect.ValueOf(strings.Split(ev, ",")).Convert(rv.Type()))
				}
			}
			return nil
		}

	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			jsonTag := f.Tag.Get("json")

			// load only public fields
			if jsonTag == "" || jsonTag == "-" {
				continue
			}

			fieldKey := key + "_" + strings.ToUpper(strings.Split(jsonTag, ",")[0])

			err := loadValue(env, fieldKey, rv.Field(i))
			if err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("unsupported type: %v", rv.Type())
}

func loadWithEnv(env map[string]string, prefix string, v interface{}) error {
	return loadValue(env, prefix, reflect.ValueOf(v).Elem())
}

func envToMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		tmp := strings.SplitN(kv, "=", 2)
		if len(tmp) == 2 {
			env[tmp[0]] = tmp[1]
		}
	}
	return env
}

// Load loads the configuration from the environment.
func Load(prefix string, v interface{}) error {
	return loadWithEnv(envToMap(), prefix, v)
}
