package common

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/readsizer/internal/common/config"
)

// LoadConfig layers, lowest precedence first: the built-in defaults, each of userSpecifiedConfigs,
// <envPrefix>_* environment variables and any flags already bound to v. The result is decoded into config and
// validated against its struct tags.
func LoadConfig(v *viper.Viper, config interface{}, defaults []byte, envPrefix string, userSpecifiedConfigs []string) error {
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return errors.Wrap(err, "error reading default config")
	}

	for _, configPath := range userSpecifiedConfigs {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return errors.WithMessagef(err, "error reading config from %s", configPath)
		}
		log.Debugf("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return errors.WithStack(err)
	}
	return commonconfig.Validate(config)
}

// BindFlags binds each flag of flags named in keys to the config key it maps to. Flags the user did not set
// leave lower precedence sources in charge.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	var err error
	flags.VisitAll(func(flag *pflag.Flag) {
		key, ok := keys[flag.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, flag)
	})
	return errors.WithStack(err)
}
