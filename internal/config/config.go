// Package config loads process-wide engine settings from the
// environment using struct tags, the same reflection-driven pattern the
// teacher uses in entrypoint/ocp/builder.go's Builder type.
package config

import (
	"os"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// Config holds the settings the engine needs that are not part of the
// manifest: where the CAS lives, how much to fan out downloads, and
// registry credentials. Each field's `env` tag names the environment
// variable that populates it.
type Config struct {
	// CASRoot pins the discovered (or explicitly overridden) CAS root
	// directory for the lifetime of the process. Empty means "run the
	// CAS finder on first use".
	CASRoot string `env:"PESDE_CAS_DIR"`

	// DownloadConcurrency bounds the download/patch pipeline's fan-out
	// (spec.md §4.5 default 16).
	DownloadConcurrency int `env:"PESDE_DOWNLOAD_CONCURRENCY"`

	// RegistryToken is the bearer token used by the native-registry
	// adapter when set (spec.md §6 authentication).
	RegistryToken string `env:"PESDE_REGISTRY_TOKEN"`

	// ContinueOnError enables the download pipeline's best-effort mode
	// (spec.md §4.5), default false (fail-fast).
	ContinueOnError bool `env:"PESDE_CONTINUE_ON_ERROR"`
}

// Default returns the Config with spec-mandated defaults applied before
// the environment is consulted.
func Default() Config {
	return Config{
		DownloadConcurrency: 16,
	}
}

// Load populates a Config from the process environment, starting from
// Default() and overriding any field whose env tag is set.
func Load() (Config, error) {
	cfg := Default()
	rv := reflect.ValueOf(&cfg).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, found := os.LookupEnv(tag)
		if !found {
			continue
		}
		field := rv.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return cfg, errors.Wrapf(err, "parsing %s", tag)
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return cfg, errors.Wrapf(err, "parsing %s", tag)
			}
			field.SetBool(b)
		}
	}
	return cfg, nil
}
