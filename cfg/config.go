package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Daemon configuration lives in $HOME/.flowlens/config.yaml:
//
//	iface: eth0
//	cores: 8
//	log-level: info
//	subscriptions: /etc/flowlens/subscriptions.yaml
//
// and may be overridden by FLOWLENS_* environment variables or command
// line flags, in viper's usual precedence order.
var (
	settings     = viper.New()
	settingsOnce sync.Once
)

const configFileName = "config"

func initSettings() {
	settings.SetConfigType("yaml")
	settings.AddConfigPath(Dir())
	settings.SetConfigName(configFileName)

	settings.SetEnvPrefix("FLOWLENS")
	settings.AutomaticEnv()

	settings.SetDefault("cores", 1)
	settings.SetDefault("log-level", "info")

	if err := settings.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine; everything can come from flags/env.
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read daemon config: %v\n", err)
			os.Exit(2)
		}
	}
}

// Settings returns the process-wide viper instance backing daemon
// configuration, initializing it (and the config directory) on first use.
func Settings() *viper.Viper {
	settingsOnce.Do(initSettings)
	return settings
}

func ConfigFilePath() string {
	return filepath.Join(Dir(), configFileName+".yaml")
}

// WriteDefault creates an empty config file in the config directory if one
// does not already exist, so that the file `flowlensd config path` prints
// exists.
func WriteDefault() error {
	path := ConfigFilePath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	return f.Close()
}
