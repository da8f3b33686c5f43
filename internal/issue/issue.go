// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

const (
	ConfigLoadFailedId Id = iota + 1
	ModuleNotFoundId
	InvalidUnitIdId
	InvalidModuleModelId
	InvalidDescriptorId
	InvalidProcessDefinitionId
	PersistenceUnitFailedId
	AlreadyDeployedId
	NotDeployedId
	AdminServerStartFailedId
	WatchFailedId
	PermissionDeniedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
		extLinks []HttpLink  // external links that might be useful for the user
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal Markdown with the given glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

const docsBase = "https://github.com/kdeploy/kdeploy/blob/main/docs/"

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

kdeploy could not read or validate its configuration.

## Things you can try:
- Check the file for syntax errors:
~~~
$ kdeploy config show
~~~

- Write a fresh default configuration:
~~~
$ kdeploy config init
~~~

- Environment variables with the ` + "`KDEPLOY_`" + ` prefix override file values,
  for example ` + "`KDEPLOY_REPOSITORY_PATH`" + `.`,
		docLinks: []HttpLink{docsBase + "configuration.md"},
	}

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

The module, or one of its dependencies, is not in the local repository.

## Things you can try:
- Install the archive into the repository:
~~~
$ kdeploy install ./orders-1.0.kjar
~~~

- Check the coordinates. Unit ids are ` + "`group:artifact:version[:kbase[:ksession]]`" + `.
- Check ` + "`repository.path`" + ` in your configuration.`,
		docLinks: []HttpLink{docsBase + "repository.md"},
	}

	invalidUnitIdIssue = &Issue{
		id: InvalidUnitIdId,
		mdMsg: `
# Invalid unit id!

A unit id names a module release and, optionally, a knowledge base and session.

## Examples:
~~~
org.acme:orders:1.0
org.acme:orders:1.0:ordersKB
org.acme:orders:1.0:ordersKB:ordersSession
~~~`,
		docLinks: []HttpLink{docsBase + "deploying.md"},
	}

	invalidModuleModelIssue = &Issue{
		id: InvalidModuleModelId,
		mdMsg: `
# Invalid module model!

The archive's ` + "`META-INF/kmodule.cue`" + ` is missing or does not match the schema.

## Common issues:
- The release coordinates do not match the repository location
- Two knowledge bases are marked as default
- A knowledge base includes one that does not exist

## Example:
~~~cue
release: {group: "org.acme", artifact: "orders", version: "1.0"}
kbases: [{name: "ordersKB", default: true, packages: ["org.acme"]}]
~~~`,
		docLinks: []HttpLink{docsBase + "kmodule.md"},
	}

	invalidDescriptorIssue = &Issue{
		id: InvalidDescriptorId,
		mdMsg: `
# Invalid deployment descriptor!

The merged deployment descriptor failed validation.

## Things you can try:
- Print the effective descriptor for the unit:
~~~
$ kdeploy descriptor org.acme:orders:1.0
~~~

- Check ` + "`runtime_strategy`" + `, ` + "`persistence_mode`" + ` and ` + "`audit_mode`" + ` values.
- Named object resolvers must be ` + "`reflection`" + `, ` + "`mvel`" + ` or a registered name.`,
		docLinks: []HttpLink{docsBase + "descriptor.md"},
	}

	invalidProcessDefinitionIssue = &Issue{
		id: InvalidProcessDefinitionId,
		mdMsg: `
# Invalid process definition!

A BPMN2 resource in the module could not be built.

## Common issues:
- The file is not valid UTF-8 or not well-formed XML
- The process has no id or no start event
- A sequence flow references a node that does not exist
- An item definition names a class missing from the module

## Things you can try:
- Disable validation while investigating with ` + "`deployment.validate_processes: false`" + `.`,
		docLinks: []HttpLink{docsBase + "processes.md"},
	}

	persistenceUnitFailedIssue = &Issue{
		id: PersistenceUnitFailedId,
		mdMsg: `
# Persistence unit failed!

The persistence unit named by the descriptor could not be opened or migrated.

## Things you can try:
- Check that ` + "`persistence.units`" + ` declares the unit and its DSN
- Check that ` + "`persistence.data_dir`" + ` is writable
- Use ` + "`persistence_mode: NONE`" + ` in the descriptor for in-memory deployments`,
		docLinks: []HttpLink{docsBase + "persistence.md"},
	}

	alreadyDeployedIssue = &Issue{
		id: AlreadyDeployedId,
		mdMsg: `
# Unit already deployed!

A unit with the same id is deployed.

## Things you can try:
- Redeploy it to pick up a new archive:
~~~
$ ssh -p <port> kdeploy@localhost redeploy org.acme:orders:1.0
~~~`,
		docLinks: []HttpLink{docsBase + "deploying.md"},
	}

	notDeployedIssue = &Issue{
		id: NotDeployedId,
		mdMsg: `
# Unit not deployed!

No deployment exists with that id. Ids include the knowledge base and session
when the unit was deployed with them.

## Things you can try:
~~~
$ ssh -p <port> kdeploy@localhost list
~~~`,
		docLinks: []HttpLink{docsBase + "deploying.md"},
	}

	adminServerStartFailedIssue = &Issue{
		id: AdminServerStartFailedId,
		mdMsg: `
# Failed to start the admin server!

## Things you can try:
- Pick another port with ` + "`admin.port`" + `, or ` + "`0`" + ` for any free port
- Check that ` + "`admin.host`" + ` is an address of this machine`,
		docLinks: []HttpLink{docsBase + "admin.md"},
	}

	watchFailedIssue = &Issue{
		id: WatchFailedId,
		mdMsg: `
# Repository watcher stopped!

The operating system refused to watch more files.

## Things you can try:
- Raise the inotify limits:
~~~
$ sudo sysctl fs.inotify.max_user_watches=524288
~~~

- Disable watching with ` + "`watch.enabled: false`" + ` and redeploy by hand.`,
		docLinks: []HttpLink{docsBase + "watch.md"},
		extLinks: []HttpLink{"https://man7.org/linux/man-pages/man7/inotify.7.html"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

You don't have permission to perform this operation.

## Things you can try:
- Check the permissions of the repository and data directories
- Run kdeploy as the user owning ` + "`repository.path`",
		docLinks: []HttpLink{docsBase + "configuration.md"},
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():         configLoadFailedIssue,
		moduleNotFoundIssue.Id():           moduleNotFoundIssue,
		invalidUnitIdIssue.Id():            invalidUnitIdIssue,
		invalidModuleModelIssue.Id():       invalidModuleModelIssue,
		invalidDescriptorIssue.Id():        invalidDescriptorIssue,
		invalidProcessDefinitionIssue.Id(): invalidProcessDefinitionIssue,
		persistenceUnitFailedIssue.Id():    persistenceUnitFailedIssue,
		alreadyDeployedIssue.Id():          alreadyDeployedIssue,
		notDeployedIssue.Id():              notDeployedIssue,
		adminServerStartFailedIssue.Id():   adminServerStartFailedIssue,
		watchFailedIssue.Id():              watchFailedIssue,
		permissionDeniedIssue.Id():         permissionDeniedIssue,
	}
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	values := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		values = append(values, i)
	}
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}
