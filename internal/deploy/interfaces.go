// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"

	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

type (
	// ArtifactRepository resolves module artifacts into containers.
	ArtifactRepository interface {
		ResolveArtifact(ctx context.Context, id kmodule.ReleaseID) (*kmodule.Container, error)
		RemoveArtifact(ctx context.Context, id kmodule.ReleaseID) error
	}

	// DefinitionBuilder turns a process source into a process asset. A nil
	// asset with a nil error means the source holds no process definition.
	DefinitionBuilder interface {
		Build(deploymentID, source string, c *kmodule.Container, validate bool) (*ProcessAsset, error)
	}

	// FormRegistrar stores form templates per deployment.
	FormRegistrar interface {
		Register(deploymentID, name, content string) error
		UnregisterAll(deploymentID string)
	}

	// FactoryRegistry hands out shared entity manager factories by persistence unit name.
	FactoryRegistry interface {
		GetOrCreate(ctx context.Context, name string) (*persistence.Factory, error)
	}

	// ClasspathScanner finds the annotated classes of a loader's external jars.
	ClasspathScanner interface {
		Scan(ctx context.Context, loader *classloader.Loader) []string
	}
)
