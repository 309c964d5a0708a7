package common

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "OCEANQUERY"

// LoadConfig reads application configuration from a config.yaml in
// defaultPath, merges in any user-specified override files, applies
// OCEANQUERY_* environment variables, and unmarshals the result into
// config. Configuration problems are fatal:
// nothing should start processing files with a half-loaded config.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		// A missing default config is fine; defaults and env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Error(errors.WithMessagef(err, "Error reading config from %s", defaultPath))
			os.Exit(-1)
		}
	}

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			log.Error(errors.WithMessagef(err, "Error reading config from %s", overrideConfig))
			os.Exit(-1)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		log.Error(errors.WithMessage(err, "Error unmarshalling config"))
		os.Exit(-1)
	}
}

func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}
