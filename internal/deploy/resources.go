// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/kdeploy/kdeploy/internal/resource"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// processResources deploys the processes, forms and classes of one module.
// touched reports whether any form was registered.
func (s *Service) processResources(c *kmodule.Container, mod *kmodule.Module, du *DeployedUnit) (touched bool, err error) {
	id := du.Identifier()
	for _, path := range mod.FileNames() {
		kind := s.classifier.Classify(path)
		if kind == resource.KindOther {
			continue
		}
		fail := func(cause error) (bool, error) {
			return touched, &ResourceError{Module: mod.Name(), Path: path, Cause: cause}
		}

		switch kind {
		case resource.KindProcess:
			source, err := textResource(mod, path)
			if err != nil {
				return fail(err)
			}
			asset, err := s.builder.Build(id, source, c, s.validate)
			if err != nil {
				return fail(err)
			}
			if asset == nil {
				return fail(ErrProcessUnreadable)
			}
			asset.Deployment = id
			asset.EncodedSource = base64.StdEncoding.EncodeToString([]byte(source))
			asset.OriginalPath = path
			du.AddAsset(asset)
			s.logger.Debug("process added", "unit", id, "process", asset.ID, "path", path)

		case resource.KindForm:
			content, err := textResource(mod, path)
			if err != nil {
				return fail(err)
			}
			if err := s.forms.Register(id, resource.BaseName(path), content); err != nil {
				return fail(err)
			}
			touched = true

		case resource.KindClass:
			class, err := c.ClassLoader().LoadClass(classloader.ClassNameFromPath(path))
			if err != nil {
				return fail(err)
			}
			du.AddClass(class)
		}
	}
	return touched, nil
}

// processClasspath loads the annotated classes of the container's external jars.
func (s *Service) processClasspath(ctx context.Context, c *kmodule.Container, du *DeployedUnit) error {
	for _, name := range s.scanner.Scan(ctx, c.ClassLoader()) {
		class, err := c.ClassLoader().LoadClass(name)
		if err != nil {
			return fmt.Errorf("load scanned class %s: %w", name, err)
		}
		du.AddClass(class)
	}
	return nil
}

func textResource(mod *kmodule.Module, path string) (string, error) {
	data, err := mod.Bytes(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrMalformedEncoding
	}
	return string(data), nil
}
