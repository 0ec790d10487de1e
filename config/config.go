// Package config owns the settings every flakewright command shares.
// Precedence is flags over environment over the project config file
// over the defaults here, which viper gives us for free once the keys
// line up.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/flakewright/flakewright/cacheserve"
	"github.com/flakewright/flakewright/render"
	"github.com/flakewright/flakewright/resolve"
	"github.com/flakewright/flakewright/verify"
)

// Keys shared by flags, FLAKEWRIGHT_ environment variables and the
// project config file.
const (
	KeyLanguage     = "language"
	KeyNixpkgs      = "nixpkgs"
	KeyMaxAttempts  = "max-attempts"
	KeyBuildTimeout = "build-timeout"
	KeyOutput       = "output"
	KeyImage        = "image"
	KeyCacheAddr    = "cache-addr"
	KeyPlatform     = "platform"
)

const EnvPrefix = "FLAKEWRIGHT"

// FileName is the optional per-project config file, resolved against
// the project root as FileName + ".yaml".
const FileName = ".flakewright"

// SetDefaults installs the stock settings.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNixpkgs, render.DefaultNixpkgsRef)
	v.SetDefault(KeyMaxAttempts, resolve.DefaultMaxAttempts)
	v.SetDefault(KeyBuildTimeout, resolve.DefaultBuildTimeout)
	v.SetDefault(KeyOutput, "table")
	v.SetDefault(KeyImage, verify.DefaultImage)
	v.SetDefault(KeyCacheAddr, cacheserve.DefaultAddr)
}

// Init sets defaults, binds the environment and reads the project
// config file when one exists. A missing file is fine, a malformed
// one is an error.
func Init(v *viper.Viper, dir string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read %s.yaml: %w", FileName, err)
	}
	return nil
}
