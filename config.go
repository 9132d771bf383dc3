package uhttp

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadOptions decodes Options from v. An empty key decodes the whole
// configuration. Timeouts may be given as duration strings ("1.5s") or as
// integer milliseconds. Function-valued options cannot be configured this
// way and stay unset.
func LoadOptions(v *viper.Viper, key string) (*Options, error) {
	if v == nil {
		return nil, configError("viper instance cannot be nil", nil)
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))

	var o Options
	var err error
	if key == "" {
		err = v.Unmarshal(&o, hook)
	} else {
		err = v.UnmarshalKey(key, &o, hook)
	}
	if err != nil {
		return nil, configError(fmt.Sprintf("failed to decode options at %q", key), err)
	}

	if err := ValidateOptions(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// millisecondsHookFunc converts plain numbers to durations in milliseconds.
func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType {
			return data, nil
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		default:
			return data, nil
		}
	}
}
