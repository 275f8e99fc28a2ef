package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// Load reads a configuration file, normalizes it and validates it.
//
// The document may be a full File (with a "groups" list), a single bare group, or a
// bare list of groups. The format is chosen by extension: .yaml/.yml, .toml, .json, .jsonc.
func Load(fs afero.Fs, path string) (File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err = parseYAML(data)
	case ".toml":
		f, err = parseTOML(data)
	case ".json", ".jsonc":
		f, err = parseJSON(data)
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedConfig, path)
	}
	if err != nil {
		return File{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return File{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	log.Debug("Loaded configuration", "path", path, "groups", len(f.Groups))
	return f, nil
}

// Parse normalizes and validates groups handed over programmatically.
func Parse(prepend string, deviceWidths []int, groups ...Group) (File, error) {
	f := File{Prepend: prepend, DeviceWidths: deviceWidths, Groups: groups}.Normalize()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func parseYAML(data []byte) (File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return File{}, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return File{}, ErrNoGroups
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		var groups []Group
		if err := root.Decode(&groups); err != nil {
			return File{}, err
		}
		return File{Groups: groups}, nil
	case yaml.MappingNode:
		if hasMappingKey(root, "groups") {
			var f File
			if err := root.Decode(&f); err != nil {
				return File{}, err
			}
			return f, nil
		}
		var g Group
		if err := root.Decode(&g); err != nil {
			return File{}, err
		}
		return File{Groups: []Group{g}}, nil
	default:
		return File{}, fmt.Errorf("unexpected YAML document kind %v", root.Kind)
	}
}

func hasMappingKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

func parseTOML(data []byte) (File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return File{}, err
	}
	if md.IsDefined("groups") {
		return f, nil
	}
	var g Group
	if _, err := toml.Decode(string(data), &g); err != nil {
		return File{}, err
	}
	return File{Groups: []Group{g}}, nil
}

func parseJSON(data []byte) (File, error) {
	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) == 0 {
		return File{}, ErrNoGroups
	}
	if data[0] == '[' {
		var groups []Group
		if err := k8syaml.Unmarshal(data, &groups); err != nil {
			return File{}, err
		}
		return File{Groups: groups}, nil
	}

	var probe map[string]any
	if err := k8syaml.Unmarshal(data, &probe); err != nil {
		return File{}, err
	}
	if _, ok := probe["groups"]; ok {
		var f File
		if err := k8syaml.Unmarshal(data, &f); err != nil {
			return File{}, err
		}
		return f, nil
	}
	var g Group
	if err := k8syaml.Unmarshal(data, &g); err != nil {
		return File{}, err
	}
	return File{Groups: []Group{g}}, nil
}
