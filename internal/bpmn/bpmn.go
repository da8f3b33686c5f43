// SPDX-License-Identifier: MPL-2.0

package bpmn

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

var (
	// ErrInvalidDefinition is returned when validation of a process fails.
	ErrInvalidDefinition = errors.New("invalid process definition")
	// ErrMalformedXML is returned when a process source is not well-formed XML.
	ErrMalformedXML = errors.New("malformed process XML")
)

type (
	// ValidationError lists the problems found in one process definition.
	ValidationError struct {
		ProcessID string
		Problems  []string
	}

	// Builder implements deploy.DefinitionBuilder for BPMN2 sources.
	Builder struct {
		logger *log.Logger
	}

	// Option configures a Builder.
	Option func(*Builder)

	definitions struct {
		XMLName         xml.Name         `xml:"definitions"`
		ItemDefinitions []itemDefinition `xml:"itemDefinition"`
		Processes       []process        `xml:"process"`
	}

	itemDefinition struct {
		ID           string `xml:"id,attr"`
		StructureRef string `xml:"structureRef,attr"`
	}

	process struct {
		ID            string         `xml:"id,attr"`
		Name          string         `xml:"name,attr"`
		Version       string         `xml:"http://www.jboss.org/drools version,attr"`
		PackageName   string         `xml:"http://www.jboss.org/drools packageName,attr"`
		StartEvents   []node         `xml:"startEvent"`
		Tasks         []node         `xml:"task"`
		UserTasks     []node         `xml:"userTask"`
		ScriptTasks   []node         `xml:"scriptTask"`
		ServiceTasks  []node         `xml:"serviceTask"`
		Gateways      []node         `xml:"exclusiveGateway"`
		Parallel      []node         `xml:"parallelGateway"`
		EndEvents     []node         `xml:"endEvent"`
		SequenceFlows []sequenceFlow `xml:"sequenceFlow"`
	}

	node struct {
		ID string `xml:"id,attr"`
	}

	sequenceFlow struct {
		ID        string `xml:"id,attr"`
		SourceRef string `xml:"sourceRef,attr"`
		TargetRef string `xml:"targetRef,attr"`
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("process %q: %s", e.ProcessID, strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidDefinition so callers can use errors.Is for programmatic detection.
func (e *ValidationError) Unwrap() error { return ErrInvalidDefinition }

// WithLogger sets the builder logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a BPMN2 definition builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{logger: log.NewWithOptions(io.Discard, log.Options{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build parses source and returns the first process it declares, or nil when
// it declares none. With validate set, node references and item definition
// classes are checked against the container.
func (b *Builder) Build(deploymentID, source string, c *kmodule.Container, validate bool) (*deploy.ProcessAsset, error) {
	var defs definitions
	if err := xml.Unmarshal([]byte(source), &defs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedXML, err)
	}
	if len(defs.Processes) == 0 {
		return nil, nil
	}
	if len(defs.Processes) > 1 {
		b.logger.Warn("source declares several processes, using the first", "deployment", deploymentID, "count", len(defs.Processes))
	}

	p := defs.Processes[0]
	if validate {
		if err := validateProcess(&p, defs.ItemDefinitions, c); err != nil {
			return nil, err
		}
	}

	return &deploy.ProcessAsset{
		ID:            p.ID,
		Name:          p.Name,
		Version:       p.Version,
		PackageName:   p.PackageName,
		Deployment:    deploymentID,
		EncodedSource: base64.StdEncoding.EncodeToString([]byte(source)),
	}, nil
}

func validateProcess(p *process, items []itemDefinition, c *kmodule.Container) error {
	var problems []string
	if p.ID == "" {
		problems = append(problems, "process has no id")
	}
	if len(p.StartEvents) == 0 {
		problems = append(problems, "process has no start event")
	}

	nodes := map[string]bool{}
	for _, group := range [][]node{p.StartEvents, p.Tasks, p.UserTasks, p.ScriptTasks, p.ServiceTasks, p.Gateways, p.Parallel, p.EndEvents} {
		for _, n := range group {
			nodes[n.ID] = true
		}
	}
	for _, f := range p.SequenceFlows {
		if !nodes[f.SourceRef] {
			problems = append(problems, fmt.Sprintf("sequence flow %s: unknown source %q", f.ID, f.SourceRef))
		}
		if !nodes[f.TargetRef] {
			problems = append(problems, fmt.Sprintf("sequence flow %s: unknown target %q", f.ID, f.TargetRef))
		}
	}

	if c != nil {
		for _, item := range items {
			if !isClassRef(item.StructureRef) {
				continue
			}
			if _, err := c.ClassLoader().LoadClass(item.StructureRef); err != nil {
				problems = append(problems, fmt.Sprintf("item definition %s: %v", item.ID, err))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{ProcessID: p.ID, Problems: problems}
	}
	return nil
}

// isClassRef reports whether a structure reference names a module class
// rather than a primitive or platform type.
func isClassRef(ref string) bool {
	return strings.Contains(ref, ".") && !strings.HasPrefix(ref, "java.")
}
