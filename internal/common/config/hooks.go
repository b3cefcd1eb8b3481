package config

import (
	"fmt"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/G-Research/readsizer/internal/common/compress"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		ZstdLevelHookFunc(),
		CountDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

// Count is an integer quantity that may be written in humanised form in config files, e.g. 1M or 2.5k.
type Count int

func ZstdLevelHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(compress.Level(0)) {
			return data, nil
		}
		return compress.ParseLevel(fmt.Sprintf("%v", data))
	}
}

func CountDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(Count(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		n, err := humanize.ParseBigBytes(data.(string))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid count %q", data)
		}
		if !n.IsInt64() || n.Int64() > int64(^uint(0)>>1) {
			return nil, errors.Errorf("count %q is too large", data)
		}
		return Count(n.Int64()), nil
	}
}
