package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PRODCAT_MAX_RETRIES for -max-retries.
const EnvPrefix = "PRODCAT"

// FileFlag is the flag name that points at the YAML config file; it is never overlaid itself.
const FileFlag = "config"

// OverlayFlags fills every flag that was not set on the command line from the environment or
// the YAML file at path (path may be empty). Keys are flag names; "max-retries" and
// "max_retries" are both accepted in the file.
//
// Precedence: command line, then environment, then file, then the flag default.
func OverlayFlags(fs *flag.FlagSet, path string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	var firstErr error
	fs.VisitAll(func(f *flag.Flag) {
		if firstErr != nil || explicit[f.Name] || f.Name == FileFlag {
			return
		}
		key, ok := lookupKey(v, f.Name)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v.GetString(key)); err != nil {
			firstErr = fmt.Errorf("config %s: %w", f.Name, err)
		}
	})
	return firstErr
}

func lookupKey(v *viper.Viper, name string) (string, bool) {
	if v.IsSet(name) {
		return name, true
	}
	alt := strings.ReplaceAll(name, "-", "_")
	if alt != name && v.IsSet(alt) {
		return alt, true
	}
	return "", false
}
