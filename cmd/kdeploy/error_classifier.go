// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kdeploy/kdeploy/internal/bpmn"
	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/internal/repository"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// classifyError maps pipeline failures to issue catalog IDs and returns a
// styled message for CLI rendering. An issue linked by an ActionableError
// wins over the sentinel mapping. Zero means no catalog entry applies.
func classifyError(err error, verbose bool) (issueID issue.Id, styledMsg string) {
	var ae *issue.ActionableError

	switch {
	case errors.As(err, &ae) && ae.IssueID != 0:
		issueID = ae.IssueID
	case errors.Is(err, os.ErrPermission):
		issueID = issue.PermissionDeniedId
	case errors.Is(err, deploy.ErrAlreadyDeployed):
		issueID = issue.AlreadyDeployedId
	case errors.Is(err, deploy.ErrNotDeployed):
		issueID = issue.NotDeployedId
	case errors.Is(err, repository.ErrArtifactNotFound),
		errors.Is(err, repository.ErrNoRelease):
		issueID = issue.ModuleNotFoundId
	case errors.Is(err, deploy.ErrInvalidUnitID),
		errors.Is(err, kmodule.ErrInvalidReleaseID),
		errors.Is(err, kmodule.ErrInvalidGroupID),
		errors.Is(err, kmodule.ErrInvalidArtifactID),
		errors.Is(err, kmodule.ErrInvalidVersion):
		issueID = issue.InvalidUnitIdId
	case errors.Is(err, kmodule.ErrModelNotFound),
		errors.Is(err, kmodule.ErrKieBaseNotFound),
		errors.Is(err, kmodule.ErrAmbiguousDefaultKieBase),
		errors.Is(err, repository.ErrDependencyCycle),
		errors.Is(err, deploy.ErrInvalidUnitKind):
		issueID = issue.InvalidModuleModelId
	case errors.Is(err, bpmn.ErrInvalidDefinition),
		errors.Is(err, bpmn.ErrMalformedXML),
		errors.Is(err, deploy.ErrProcessUnreadable),
		errors.Is(err, deploy.ErrMalformedEncoding):
		issueID = issue.InvalidProcessDefinitionId
	case errors.Is(err, descriptor.ErrUnsupportedFormat),
		errors.Is(err, descriptor.ErrInvalidPersistenceMode),
		errors.Is(err, descriptor.ErrInvalidAuditMode),
		errors.Is(err, descriptor.ErrInvalidRuntimeStrategy),
		errors.Is(err, descriptor.ErrInvalidMergeMode),
		errors.Is(err, deploy.ErrConfigurationNotString),
		errors.Is(err, deploy.ErrNotAMarshallingStrategy):
		issueID = issue.InvalidDescriptorId
	case errors.Is(err, persistence.ErrUnitUnavailable),
		errors.Is(err, persistence.ErrNoUnitName):
		issueID = issue.PersistenceUnitFailedId
	}

	return issueID, fmt.Sprintf("\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))
}
