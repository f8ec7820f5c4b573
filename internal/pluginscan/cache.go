package pluginscan

// file: internal/pluginscan/cache.go

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const cacheVersion = 1

//go:embed plugin_cache.schema.json
var cacheSchemaJSON []byte

const cacheSchemaID = "https://preflight.local/schema/plugin_cache.json"

var (
	cacheSchemaOnce sync.Once
	cacheSchema     *jsonschema.Schema
	cacheSchemaErr  error
)

// ErrInvalidCache marks cache files that fail schema validation.
var ErrInvalidCache = errors.New("invalid plugin cache")

// cacheFile is the on-disk layout.
type cacheFile struct {
	Version   int       `json:"version"`
	ScannedAt time.Time `json:"scanned_at"`
	Entries   []Entry   `json:"entries"`
}

func compiledCacheSchema() (*jsonschema.Schema, error) {
	cacheSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if err := compiler.AddResource(cacheSchemaID, bytes.NewReader(cacheSchemaJSON)); err != nil {
			cacheSchemaErr = errors.Wrap(err, "compiler.AddResource failed")
			return
		}
		cacheSchema, cacheSchemaErr = compiler.Compile(cacheSchemaID)
		cacheSchemaErr = errors.Wrap(cacheSchemaErr, "compiler.Compile failed")
	})
	return cacheSchema, cacheSchemaErr
}

// validateCache checks raw cache bytes against the embedded schema.
func validateCache(data []byte) error {
	schema, err := compiledCacheSchema()
	if err != nil {
		return err
	}
	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return errors.Mark(errors.Wrap(err, "cache is not JSON"), ErrInvalidCache)
	}
	if err := schema.Validate(instance); err != nil {
		return errors.Mark(errors.Wrap(err, "cache does not match schema"), ErrInvalidCache)
	}
	return nil
}

// loadCache reads the cache at path. A missing file yields no entries and no error.
func loadCache(path string) ([]Entry, time.Time, error) {
	// #nosec G304 -- cache path comes from configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, errors.Wrap(err, "failed to read plugin cache")
	}
	if err := validateCache(data); err != nil {
		return nil, time.Time{}, err
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, time.Time{}, errors.Mark(errors.Wrap(err, "failed to decode plugin cache"), ErrInvalidCache)
	}
	return cf.Entries, cf.ScannedAt, nil
}

// saveCache writes entries atomically.
func saveCache(path string, entries []Entry, at time.Time) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(cacheFile{Version: cacheVersion, ScannedAt: at.UTC(), Entries: entries}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode plugin cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create plugin cache directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write plugin cache")
	}
	return errors.Wrap(os.Rename(tmp, path), "failed to replace plugin cache")
}
