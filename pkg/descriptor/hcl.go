// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

type (
	// hclDescriptor is the HCL shape of a descriptor. Object models are
	// blocks; named models carry their name as the block label:
	//
	//	persistence_mode = "JPA"
	//	required_roles   = { process = ["manager"] }
	//
	//	environment_entry "retries" {
	//	  resolver   = "cue"
	//	  identifier = "3"
	//	}
	hclDescriptor struct {
		PersistenceUnit      string              `hcl:"persistence_unit,optional"`
		AuditPersistenceUnit string              `hcl:"audit_persistence_unit,optional"`
		AuditMode            string              `hcl:"audit_mode,optional"`
		PersistenceMode      string              `hcl:"persistence_mode,optional"`
		RuntimeStrategy      string              `hcl:"runtime_strategy,optional"`
		RequiredRoles        map[string][]string `hcl:"required_roles,optional"`
		Classes              []string            `hcl:"classes,optional"`

		MarshallingStrategies []hclModel      `hcl:"marshalling_strategy,block"`
		EventListeners        []hclModel      `hcl:"event_listener,block"`
		TaskEventListeners    []hclModel      `hcl:"task_event_listener,block"`
		Globals               []hclNamedModel `hcl:"global,block"`
		WorkItemHandlers      []hclNamedModel `hcl:"work_item_handler,block"`
		EnvironmentEntries    []hclNamedModel `hcl:"environment_entry,block"`
		Configuration         []hclNamedModel `hcl:"configuration,block"`
	}

	hclModel struct {
		Resolver   string    `hcl:"resolver"`
		Identifier string    `hcl:"identifier"`
		Parameters cty.Value `hcl:"parameters,optional"`
	}

	hclNamedModel struct {
		Name       string    `hcl:"name,label"`
		Resolver   string    `hcl:"resolver"`
		Identifier string    `hcl:"identifier"`
		Parameters cty.Value `hcl:"parameters,optional"`
	}
)

func parseHCL(data []byte, filename string) (*Descriptor, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.New(diags.Error())
	}

	var hd hclDescriptor
	if diags := gohcl.DecodeBody(file.Body, nil, &hd); diags.HasErrors() {
		return nil, errors.New(diags.Error())
	}

	d := &Descriptor{
		PersistenceUnit:      hd.PersistenceUnit,
		AuditPersistenceUnit: hd.AuditPersistenceUnit,
		AuditMode:            AuditMode(hd.AuditMode),
		PersistenceMode:      PersistenceMode(hd.PersistenceMode),
		RuntimeStrategy:      RuntimeStrategy(hd.RuntimeStrategy),
		RequiredRoles:        hd.RequiredRoles,
		Classes:              hd.Classes,
	}

	var err error
	convert := func(models []hclModel) []ObjectModel {
		if len(models) == 0 {
			return nil
		}
		out := make([]ObjectModel, 0, len(models))
		for _, m := range models {
			params, perr := ctyParams(m.Parameters)
			if perr != nil && err == nil {
				err = fmt.Errorf("%s: %w", m.Identifier, perr)
			}
			out = append(out, ObjectModel{Resolver: m.Resolver, Identifier: m.Identifier, Parameters: params})
		}
		return out
	}
	convertNamed := func(models []hclNamedModel) []NamedObjectModel {
		if len(models) == 0 {
			return nil
		}
		out := make([]NamedObjectModel, 0, len(models))
		for _, m := range models {
			params, perr := ctyParams(m.Parameters)
			if perr != nil && err == nil {
				err = fmt.Errorf("%s: %w", m.Name, perr)
			}
			out = append(out, NamedObjectModel{Name: m.Name, Resolver: m.Resolver, Identifier: m.Identifier, Parameters: params})
		}
		return out
	}

	d.MarshallingStrategies = convert(hd.MarshallingStrategies)
	d.EventListeners = convert(hd.EventListeners)
	d.TaskEventListeners = convert(hd.TaskEventListeners)
	d.Globals = convertNamed(hd.Globals)
	d.WorkItemHandlers = convertNamed(hd.WorkItemHandlers)
	d.EnvironmentEntries = convertNamed(hd.EnvironmentEntries)
	d.Configuration = convertNamed(hd.Configuration)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ctyParams converts a parameters attribute (a tuple or list) to Go values.
func ctyParams(v cty.Value) ([]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsTupleType() && !ty.IsListType() {
		return nil, fmt.Errorf("parameters must be a list, got %s", ty.FriendlyName())
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	params, _ := native.([]any)
	return params, nil
}

// ctyToNative recursively converts a cty.Value to its most natural Go counterpart.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			nativeVal, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, nativeVal)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		goMap := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			nativeVal, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			goMap[key.AsString()] = nativeVal
		}
		return goMap, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
