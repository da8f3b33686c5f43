// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/kdeploy/kdeploy/pkg/cueutil"
)

const (
	// FormatCUE is the CUE descriptor format.
	FormatCUE Format = "cue"
	// FormatYAML is the YAML descriptor format.
	FormatYAML Format = "yaml"
	// FormatTOML is the TOML descriptor format.
	FormatTOML Format = "toml"
	// FormatHCL is the HCL descriptor format.
	FormatHCL Format = "hcl"
	// FormatJSON is the JSON descriptor format.
	FormatJSON Format = "json"

	// BaseName is the descriptor file name inside META-INF, without extension.
	BaseName = "META-INF/kie-deployment-descriptor"
)

var (
	//go:embed descriptor_schema.cue
	descriptorSchema []byte
	schema           = cueutil.MustCompile(descriptorSchema, "#Descriptor")

	// ErrUnsupportedFormat is returned for unknown descriptor file extensions.
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")

	// candidatePaths lists descriptor locations in lookup order.
	candidatePaths = []string{
		BaseName + ".cue",
		BaseName + ".yaml",
		BaseName + ".yml",
		BaseName + ".toml",
		BaseName + ".hcl",
		BaseName + ".json",
	}
)

// Format identifies a descriptor encoding.
type Format string

// CandidatePaths returns the module paths probed for a descriptor, in order.
func CandidatePaths() []string {
	out := make([]string, len(candidatePaths))
	copy(out, candidatePaths)
	return out
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(p string) (Format, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".hcl":
		return FormatHCL, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, p)
	}
}

// ParseFile parses descriptor content, deriving the format from filename.
func ParseFile(data []byte, filename string) (*Descriptor, error) {
	format, err := FormatFromPath(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data, format, filename)
}

// Parse decodes and validates a descriptor. Nested object models inside
// parameters are normalized to ObjectModel values.
func Parse(data []byte, format Format, filename string) (*Descriptor, error) {
	var (
		d   *Descriptor
		err error
	)
	switch format {
	case FormatCUE:
		d, err = parseCUE(data, filename)
	case FormatYAML:
		d = &Descriptor{}
		err = yaml.Unmarshal(data, d)
	case FormatTOML:
		d = &Descriptor{}
		err = toml.Unmarshal(data, d)
	case FormatHCL:
		d, err = parseHCL(data, filename)
	case FormatJSON:
		d = &Descriptor{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(d)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	d.normalize()
	if ok, errs := d.IsValid(); !ok {
		return nil, fmt.Errorf("%s: %w", filename, errors.Join(errs...))
	}
	return d, nil
}

func parseCUE(data []byte, filename string) (*Descriptor, error) {
	return cueutil.Decode[Descriptor](schema, data, cueutil.WithFilename(filename))
}

// Marshal encodes a descriptor in the given format. HCL output is not
// supported; use another format to print descriptors.
func Marshal(d *Descriptor, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(d)
	case FormatTOML:
		return toml.Marshal(d)
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	default:
		return nil, fmt.Errorf("%w for output: %s", ErrUnsupportedFormat, format)
	}
}
