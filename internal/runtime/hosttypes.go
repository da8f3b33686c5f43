// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/pkg/classloader"
)

// Host types every deployment can reference from a descriptor through the
// reflection resolver.
const (
	ClassPlaceholderResolverStrategy = "org.kdeploy.runtime.PlaceholderResolverStrategy"
	ClassJSONMarshallingStrategy     = "org.kdeploy.runtime.JSONMarshallingStrategy"
	ClassLoggingEventListener        = "org.kdeploy.runtime.LoggingEventListener"
	ClassLoggingWorkItemHandler      = "org.kdeploy.runtime.LoggingWorkItemHandler"
)

type (
	// LoggingEventListener logs every process event.
	LoggingEventListener struct {
		Logger *log.Logger
	}

	// LoggingWorkItemHandler logs work items and completes them without results.
	LoggingWorkItemHandler struct {
		Logger *log.Logger
	}
)

// OnEvent implements ProcessEventListener.
func (l *LoggingEventListener) OnEvent(_ context.Context, e *ProcessEvent) {
	l.Logger.Info("process event",
		"type", e.Type,
		"deployment", e.DeploymentID,
		"engine", e.EngineID,
		"process", e.ProcessID,
		"identity", e.Identity)
}

// ExecuteWorkItem implements WorkItemHandler.
func (h *LoggingWorkItemHandler) ExecuteWorkItem(_ context.Context, item WorkItem) (map[string]any, error) {
	h.Logger.Info("work item", "id", item.ID, "name", item.Name)
	return map[string]any{}, nil
}

// RegisterHostTypes registers the runtime host types. Logging types accept
// an optional string argument used as the log prefix.
func RegisterHostTypes(reg *classloader.Registry, logger *log.Logger) {
	reg.Register(ClassPlaceholderResolverStrategy, func([]any, map[string]any) (any, error) {
		return NewPlaceholderResolverStrategy(), nil
	})
	reg.Register(ClassJSONMarshallingStrategy, func([]any, map[string]any) (any, error) {
		return JSONMarshallingStrategy{}, nil
	})
	reg.Register(ClassLoggingEventListener, func(args []any, _ map[string]any) (any, error) {
		l, err := prefixedLogger(logger, args)
		if err != nil {
			return nil, err
		}
		return &LoggingEventListener{Logger: l}, nil
	})
	reg.Register(ClassLoggingWorkItemHandler, func(args []any, _ map[string]any) (any, error) {
		l, err := prefixedLogger(logger, args)
		if err != nil {
			return nil, err
		}
		return &LoggingWorkItemHandler{Logger: l}, nil
	})
}

func prefixedLogger(logger *log.Logger, args []any) (*log.Logger, error) {
	if len(args) == 0 {
		return logger, nil
	}
	prefix, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("log prefix must be a string, got %T", args[0])
	}
	return logger.WithPrefix(prefix), nil
}
