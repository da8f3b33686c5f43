// SPDX-License-Identifier: MPL-2.0

package config

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/kdeploy/kdeploy/pkg/cueutil"
)

// cueFieldNames lists the regular fields of a schema definition, sorted.
func cueFieldNames(t *testing.T, def cue.Value) []string {
	t.Helper()

	iter, err := def.Fields(cue.Optional(true))
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	var names []string
	for iter.Next() {
		sel := iter.Selector()
		if sel.IsDefinition() || sel.LabelType().IsHidden() {
			continue
		}
		names = append(names, strings.TrimSuffix(sel.String(), "?"))
	}
	slices.Sort(names)
	return names
}

// jsonFieldNames lists the json tag names of a struct type, sorted.
func jsonFieldNames(typ reflect.Type) []string {
	var names []string
	for i := range typ.NumField() {
		field := typ.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if !field.IsExported() || name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TestSchemaSync keeps the CUE schema and the Go structs declaring the same fields.
func TestSchemaSync(t *testing.T) {
	t.Parallel()

	schema := cuecontext.New().CompileString(configSchema)
	if err := schema.Err(); err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	tests := []struct {
		def string
		typ reflect.Type
	}{
		{"#Config", reflect.TypeFor[Config]()},
		{"#RepositoryConfig", reflect.TypeFor[RepositoryConfig]()},
		{"#PersistenceConfig", reflect.TypeFor[PersistenceConfig]()},
		{"#UnitEntry", reflect.TypeFor[UnitEntry]()},
		{"#DeploymentConfig", reflect.TypeFor[DeploymentConfig]()},
		{"#AdminConfig", reflect.TypeFor[AdminConfig]()},
		{"#WatchConfig", reflect.TypeFor[WatchConfig]()},
		{"#LogConfig", reflect.TypeFor[LogConfig]()},
	}
	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			t.Parallel()

			def := schema.LookupPath(cue.ParsePath(tt.def))
			if !def.Exists() {
				t.Fatalf("%s not found in schema", tt.def)
			}
			cueFields := cueFieldNames(t, def)
			goFields := jsonFieldNames(tt.typ)
			if !slices.Equal(cueFields, goFields) {
				t.Errorf("schema fields %v, struct tags %v", cueFields, goFields)
			}
		})
	}
}

func TestSchemaConstraints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"empty document", ``, false},
		{"full document", GenerateCUE(DefaultConfig()), false},
		{"unknown top-level field", `container_engine: "podman"`, true},
		{"unknown nested field", `admin: {address: "0.0.0.0"}`, true},
		{"empty repository path", `repository: {path: ""}`, true},
		{"unit entry", `persistence: {units: [{name: "org.jbpm.domain", dsn: ":memory:"}]}`, false},
		{"unit entry without dsn", `persistence: {units: [{name: "org.jbpm.domain"}]}`, true},
		{"unit entry with extra field", `persistence: {units: [{name: "a", dsn: "b", pool: 4}]}`, true},
		{"merge mode", `deployment: {merge_mode: "OVERRIDE_EMPTY"}`, false},
		{"unknown merge mode", `deployment: {merge_mode: "MERGE_ALL"}`, true},
		{"lowercase strategy", `deployment: {runtime_strategy: "singleton"}`, true},
		{"per process instance", `deployment: {runtime_strategy: "PER_PROCESS_INSTANCE"}`, false},
		{"port zero", `admin: {port: 0}`, false},
		{"port out of range", `admin: {port: 70000}`, true},
		{"port as string", `admin: {port: "22"}`, true},
		{"compound duration", `admin: {token_ttl: "1h30m"}`, false},
		{"fractional duration", `watch: {debounce: "1.5s"}`, false},
		{"bare number duration", `watch: {debounce: "500"}`, true},
		{"duration without unit", `watch: {debounce: 500}`, true},
		{"log level", `log: {level: "debug"}`, false},
		{"unknown log level", `log: {level: "trace"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := configDefinition.DecodeMap([]byte(tt.doc), cueutil.WithFilename("config.cue"))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeMap() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
