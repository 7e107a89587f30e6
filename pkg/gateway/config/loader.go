// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-core/env"
)

// Format is the encoding of a configuration document.
type Format string

const (
	// FormatJSON covers plain JSON and JSON with comments (hujson).
	FormatJSON Format = "json"
	// FormatYAML covers YAML documents.
	FormatYAML Format = "yaml"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader reads a gateway configuration file.
//
// ${VAR} references in string values and map keys are expanded from the
// environment after decoding, so secrets such as bearer tokens do not have to
// live in the file. Expanded text is never parsed as configuration.
type Loader struct {
	path      string
	envReader env.Reader
}

// NewLoader creates a loader for path.
func NewLoader(path string, envReader env.Reader) *Loader {
	return &Loader{path: path, envReader: envReader}
}

// Load reads, decodes and defaults the configuration. It does not validate.
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := Decode(data, FormatForPath(l.path), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}
	if l.envReader != nil {
		l.expand(reflect.ValueOf(&cfg).Elem())
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return &cfg, nil
}

// expand rewrites every string reachable from v in place.
func (l *Loader) expand(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			l.expand(v.Elem())
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				l.expand(v.Field(i))
			}
		}
	case reflect.Slice:
		for i := range v.Len() {
			l.expand(v.Index(i))
		}
	case reflect.Map:
		if v.IsNil() {
			return
		}
		// keys may reference the environment too, so the map is rebuilt
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := reflect.New(v.Type().Key()).Elem()
			key.Set(iter.Key())
			l.expand(key)
			val := reflect.New(v.Type().Elem()).Elem()
			val.Set(iter.Value())
			l.expand(val)
			out.SetMapIndex(key, val)
		}
		v.Set(out)
	case reflect.String:
		if v.CanSet() {
			v.SetString(l.expandString(v.String()))
		}
	}
}

func (l *Loader) expandString(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return l.envReader.Getenv(envRefPattern.FindStringSubmatch(ref)[1])
	})
}

// FormatForPath picks the decoder from the file extension. Anything that is
// not YAML is treated as JSON with comments.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode strictly decodes data into out. Unknown fields are an error.
func Decode(data []byte, format Format, out any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case FormatJSON:
		standard, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(standard))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return err
		}
		if dec.More() {
			return errors.New("unexpected data after the JSON document")
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
}

// ParseBackend decodes a single JSON backend descriptor and applies defaults.
func ParseBackend(data []byte) (*Backend, error) {
	var b Backend
	if err := Decode(data, FormatJSON, &b); err != nil {
		return nil, fmt.Errorf("invalid backend descriptor: %w", err)
	}
	if err := b.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &b, nil
}
