package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

// LoaderFile is the YAML description of the loader tables.
//
//	paths:
//	  vendor: https://cdn.example.com/vendor
//	finalPaths:
//	  app: /static/app
//	maps:
//	  "*": {jquery: vendor/jquery-3}
//	shims:
//	  vendor/legacy: {deps: [vendor/base], exports: Legacy}
//	bundles:
//	  app/bundle: [app/a, app/b]
//	depCache:
//	  app/main: [app/util]
//	preload:
//	  app/version: "define('1.0');"
type LoaderFile struct {
	Paths        map[string]string            `yaml:"paths"`
	FinalPaths   map[string]string            `yaml:"finalPaths"`
	Maps         map[string]map[string]string `yaml:"maps"`
	Shims        map[string]ShimConfig        `yaml:"shims"`
	Bundles      map[string][]string          `yaml:"bundles"`
	DepCache     map[string][]string          `yaml:"depCache"`
	Preload      map[string]string            `yaml:"preload"`
	PreloadGroup string                       `yaml:"preloadGroup"`
}

// ShimConfig is the YAML form of loader.Shim.
type ShimConfig struct {
	Deps    []string      `yaml:"deps"`
	Exports StringOrSlice `yaml:"exports"`
	AMD     bool          `yaml:"amd"`
}

// StringOrSlice supports YAML fields that can be either a string or a slice of strings.
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler to handle both string and []string.
func (s *StringOrSlice) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}

	var slice []string
	if err := unmarshal(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// LoadLoaderFile reads and parses a loader table file.
func LoadLoaderFile(path string) (*LoaderFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read loader config: %w", err)
	}
	return ParseLoaderFile(data)
}

// ParseLoaderFile parses loader tables from YAML.
func ParseLoaderFile(data []byte) (*LoaderFile, error) {
	f := &LoaderFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse loader config: %w", err)
	}
	return f, nil
}

// Apply registers the tables with l. It must run on the loader's goroutine.
// Every path is attempted; the errors of rejected ones are joined.
func (f *LoaderFile) Apply(l *loader.Loader) error {
	var errs []error
	for prefix, url := range f.Paths {
		if err := l.RegisterResourcePath(prefix, url, false); err != nil {
			errs = append(errs, err)
		}
	}
	for prefix, url := range f.FinalPaths {
		if err := l.RegisterResourcePath(prefix, url, true); err != nil {
			errs = append(errs, err)
		}
	}
	for mapContext, m := range f.Maps {
		l.RegisterMap(mapContext, m)
	}
	for id, s := range f.Shims {
		l.RegisterShim(id, loader.Shim{Deps: s.Deps, Exports: s.Exports, AMD: s.AMD})
	}
	for bundle, members := range f.Bundles {
		l.RegisterBundle(bundle, members)
	}
	for id, deps := range f.DepCache {
		l.RegisterDepCache(id, deps)
	}
	if len(f.Preload) > 0 {
		p := make(model.Preload, len(f.Preload))
		for name, src := range f.Preload {
			p[name] = model.Source(src)
		}
		l.Preload(p, f.PreloadGroup)
	}
	return errors.Join(errs...)
}
