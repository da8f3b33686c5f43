// SPDX-License-Identifier: MPL-2.0

package descriptor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

// Each document declares the same descriptor in a different format.
var formatDocuments = map[string]string{
	"META-INF/kie-deployment-descriptor.cue": `
persistence_mode: "NONE"
runtime_strategy: "PER_PROCESS_INSTANCE"
environment_entries: [{
	name:       "retries"
	resolver:   "cue"
	identifier: "3"
}]
marshalling_strategies: [{
	resolver:   "reflection"
	identifier: "org.acme.Strategy"
	parameters: [2, "text", {resolver: "cue", identifier: "1 + 1"}]
}]
required_roles: process: ["manager"]
classes: ["org.acme.Extra"]
`,
	"META-INF/kie-deployment-descriptor.yaml": `
persistence_mode: NONE
runtime_strategy: PER_PROCESS_INSTANCE
environment_entries:
  - name: retries
    resolver: cue
    identifier: "3"
marshalling_strategies:
  - resolver: reflection
    identifier: org.acme.Strategy
    parameters: [2, text, {resolver: cue, identifier: "1 + 1"}]
required_roles:
  process: [manager]
classes: [org.acme.Extra]
`,
	"META-INF/kie-deployment-descriptor.toml": `
persistence_mode = "NONE"
runtime_strategy = "PER_PROCESS_INSTANCE"
classes = ["org.acme.Extra"]

[required_roles]
process = ["manager"]

[[environment_entries]]
name = "retries"
resolver = "cue"
identifier = "3"

[[marshalling_strategies]]
resolver = "reflection"
identifier = "org.acme.Strategy"
parameters = [2, "text", { resolver = "cue", identifier = "1 + 1" }]
`,
	"META-INF/kie-deployment-descriptor.hcl": `
persistence_mode = "NONE"
runtime_strategy = "PER_PROCESS_INSTANCE"
required_roles   = { process = ["manager"] }
classes          = ["org.acme.Extra"]

environment_entry "retries" {
  resolver   = "cue"
  identifier = "3"
}

marshalling_strategy {
  resolver   = "reflection"
  identifier = "org.acme.Strategy"
  parameters = [2, "text", { resolver = "cue", identifier = "1 + 1" }]
}
`,
	"META-INF/kie-deployment-descriptor.json": `{
  "persistence_mode": "NONE",
  "runtime_strategy": "PER_PROCESS_INSTANCE",
  "environment_entries": [{"name": "retries", "resolver": "cue", "identifier": "3"}],
  "marshalling_strategies": [{
    "resolver": "reflection",
    "identifier": "org.acme.Strategy",
    "parameters": [2, "text", {"resolver": "cue", "identifier": "1 + 1"}]
  }],
  "required_roles": {"process": ["manager"]},
  "classes": ["org.acme.Extra"]
}`,
}

func TestParseFile_Formats(t *testing.T) {
	t.Parallel()

	for filename, doc := range formatDocuments {
		t.Run(filename, func(t *testing.T) {
			t.Parallel()

			d, err := descriptor.ParseFile([]byte(doc), filename)
			if err != nil {
				t.Fatalf("ParseFile() error = %v", err)
			}
			if d.PersistenceMode != descriptor.PersistenceNone {
				t.Errorf("PersistenceMode = %q", d.PersistenceMode)
			}
			if d.RuntimeStrategy != descriptor.StrategyPerProcessInstance {
				t.Errorf("RuntimeStrategy = %q", d.RuntimeStrategy)
			}
			if len(d.EnvironmentEntries) != 1 || d.EnvironmentEntries[0].Name != "retries" || d.EnvironmentEntries[0].Identifier != "3" {
				t.Errorf("EnvironmentEntries = %+v", d.EnvironmentEntries)
			}
			if got := d.RolesFor(descriptor.RoleTypeProcess); len(got) != 1 || got[0] != "manager" {
				t.Errorf("RolesFor(process) = %v", got)
			}
			if len(d.Classes) != 1 || d.Classes[0] != "org.acme.Extra" {
				t.Errorf("Classes = %v", d.Classes)
			}

			if len(d.MarshallingStrategies) != 1 {
				t.Fatalf("MarshallingStrategies = %+v", d.MarshallingStrategies)
			}
			params := d.MarshallingStrategies[0].Parameters
			if len(params) != 3 {
				t.Fatalf("Parameters = %#v", params)
			}
			if n, ok := params[0].(int64); !ok || n != 2 {
				t.Errorf("Parameters[0] = %#v, want int64(2)", params[0])
			}
			if s, ok := params[1].(string); !ok || s != "text" {
				t.Errorf("Parameters[1] = %#v, want \"text\"", params[1])
			}
			nested, ok := params[2].(descriptor.ObjectModel)
			if !ok || nested.Resolver != "cue" || nested.Identifier != "1 + 1" {
				t.Errorf("Parameters[2] = %#v, want nested object model", params[2])
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		doc      string
		wantErr  error
	}{
		{
			name:     "unknown persistence mode",
			filename: "d.yaml",
			doc:      "persistence_mode: SOMETIMES\n",
			wantErr:  descriptor.ErrInvalidPersistenceMode,
		},
		{
			name:     "unknown strategy",
			filename: "d.json",
			doc:      `{"runtime_strategy": "ALWAYS"}`,
			wantErr:  descriptor.ErrInvalidRuntimeStrategy,
		},
		{
			name:     "named model without name",
			filename: "d.yaml",
			doc:      "globals:\n  - resolver: cue\n    identifier: \"1\"\n",
			wantErr:  descriptor.ErrUnnamedModel,
		},
		{
			name:     "model without resolver",
			filename: "d.toml",
			doc:      "[[event_listeners]]\nidentifier = \"org.acme.L\"\n",
			wantErr:  descriptor.ErrIncompleteModel,
		},
		{
			name:     "unsupported extension",
			filename: "d.xml",
			doc:      "<deployment-descriptor/>",
			wantErr:  descriptor.ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := descriptor.ParseFile([]byte(tt.doc), tt.filename)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		doc      string
	}{
		{"cue enum", "d.cue", `audit_mode: "SOMETIMES"`},
		{"cue unknown field", "d.cue", `colour: "blue"`},
		{"json unknown field", "d.json", `{"colour": "blue"}`},
		{"hcl unknown block", "d.hcl", "widget \"x\" {}\n"},
		{"hcl parameters not a list", "d.hcl", "global \"g\" {\n  resolver = \"cue\"\n  identifier = \"1\"\n  parameters = \"x\"\n}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := descriptor.ParseFile([]byte(tt.doc), tt.filename); err == nil {
				t.Error("ParseFile() expected error")
			}
		})
	}
}

func TestMarshal_RoundTripsThroughParse(t *testing.T) {
	t.Parallel()

	d, err := descriptor.ParseFile([]byte(formatDocuments["META-INF/kie-deployment-descriptor.yaml"]), "d.yaml")
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}

	for _, format := range []descriptor.Format{descriptor.FormatYAML, descriptor.FormatJSON} {
		out, err := descriptor.Marshal(d, format)
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", format, err)
		}
		back, err := descriptor.Parse(out, format, "out."+string(format))
		if err != nil {
			t.Fatalf("Parse(%s) error = %v\n%s", format, err, out)
		}
		if back.RuntimeStrategy != d.RuntimeStrategy || len(back.MarshallingStrategies[0].Parameters) != 3 {
			t.Errorf("%s round trip lost data:\n%s", format, out)
		}
	}

	if _, err := descriptor.Marshal(d, descriptor.FormatHCL); !errors.Is(err, descriptor.ErrUnsupportedFormat) {
		t.Errorf("Marshal(hcl) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestCandidatePaths(t *testing.T) {
	t.Parallel()

	paths := descriptor.CandidatePaths()
	if !strings.HasSuffix(paths[0], ".cue") {
		t.Errorf("CandidatePaths()[0] = %s, want the CUE descriptor first", paths[0])
	}
	paths[0] = "mutated"
	if descriptor.CandidatePaths()[0] == "mutated" {
		t.Error("CandidatePaths() exposes internal state")
	}
}
