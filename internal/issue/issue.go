// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	EngineNotFoundId Id = iota + 1
	MalformedReferenceId
	ExternalCommandFailedId
	AuthenticationFailedId
	DigestNotFoundId
	ConvergenceTimeoutId
	UpdateFailedId
	FunctionNotFoundId
	RepositoryNotFoundId
	SmokeCheckFailedId
	ConfigInvalidId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty
	extLinks []HttpLink  // external links that might be useful for the user
}

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

// Render renders the page as terminal markdown using the named glamour style
// ("dark", "light", "notty", ...).
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

var (
	render = glamour.Render

	engineNotFoundIssue = &Issue{
		id: EngineNotFoundId,
		mdMsg: `
# Container engine not found!

lambdado builds, tags and pushes images with the docker CLI, and it could not be executed.

## Things you can try:
- Install Docker and make sure the daemon is running:
~~~
$ docker version
~~~
- Point lambdado at another docker-compatible binary:
~~~
$ LAMBDADO_ENGINE_BINARY=/usr/local/bin/docker lambdado deploy ...
~~~`,
		docLinks: []HttpLink{"https://docs.docker.com/engine/install/"},
	}

	malformedReferenceIssue = &Issue{
		id: MalformedReferenceId,
		mdMsg: `
# Malformed image reference!

Registry references must look like ` + "`host/name[:tag]`" + ` or ` + "`host/name@sha256:<hex>`" + `.
Function updates only accept digest-addressed references.

## Example:
~~~
123456789012.dkr.ecr.us-east-1.amazonaws.com/my-function:latest
123456789012.dkr.ecr.us-east-1.amazonaws.com/my-function@sha256:9f86d081884c7d65...
~~~

## Things you can try:
- Copy the repository URI from the ECR console
- Run ` + "`lambdado push`" + ` to obtain the digest-addressed URI of a local image`,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/AmazonECR/latest/userguide/docker-pull-ecr-image.html"},
	}

	externalCommandFailedIssue = &Issue{
		id: ExternalCommandFailedId,
		mdMsg: `
# External command failed!

A docker or aws command exited with a non-zero status. The command line and its
captured output are printed above.

## Things you can try:
- Re-run the printed command by hand to see the full error
- Use ` + "`--verbose`" + ` to log every command lambdado runs
- Registry and network errors are often transient: retry the deploy, it is idempotent`,
		docLinks: []HttpLink{"https://docs.docker.com/reference/cli/docker/"},
	}

	authenticationFailedIssue = &Issue{
		id: AuthenticationFailedId,
		mdMsg: `
# Registry authentication failed!

lambdado fetches a short-lived ECR token and pipes it to ` + "`docker login`" + `.

## Things you can try:
- Check that your AWS credentials are valid:
~~~
$ aws sts get-caller-identity
~~~
- Make sure the registry host's region matches a region your credentials can use
- Switch credential modes with ` + "`LAMBDADO_CREDENTIALS=cli`" + ` to use the aws CLI instead of the SDK`,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/AmazonECR/latest/userguide/registry_auth.html"},
	}

	digestNotFoundIssue = &Issue{
		id: DigestNotFoundId,
		mdMsg: `
# Pushed image digest not found!

The push succeeded but its output contained no ` + "`digest: sha256:<hex>`" + ` line, so
the function cannot be pinned to an immutable image.

## Things you can try:
- Run the push by hand and check its last lines
- Make sure the engine binary is docker (or prints docker-compatible push output)`,
		docLinks: []HttpLink{"https://docs.docker.com/reference/cli/docker/image/push/"},
	}

	convergenceTimeoutIssue = &Issue{
		id: ConvergenceTimeoutId,
		mdMsg: `
# Function did not converge!

The function stayed in an in-progress state for the whole polling budget.

## Things you can try:
- Inspect the function state:
~~~
$ aws lambda get-function-configuration --function-name <name>
~~~
- Raise the budget with ` + "`LAMBDADO_POLL_MAX_ATTEMPTS`" + ` or ` + "`LAMBDADO_POLL_INTERVAL`" + `
- Resume with ` + "`lambdado wait`" + ` and then ` + "`lambdado update`" + ``,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/lambda/latest/dg/functions-states.html"},
	}

	updateFailedIssue = &Issue{
		id: UpdateFailedId,
		mdMsg: `
# Function update failed!

The platform reported a failed update. lambdado does not roll back: the function
keeps whatever code the platform settled on.

## Things you can try:
- Read the reported reason; image architecture and entrypoint mismatches are common
- Redeploy the previous digest with ` + "`lambdado update --image-uri <uri@sha256:...>`" + ``,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/lambda/latest/dg/images-create.html"},
	}

	functionNotFoundIssue = &Issue{
		id: FunctionNotFoundId,
		mdMsg: `
# Function not found!

No function with that name exists in the target region.

## Things you can try:
- Check the function name and ` + "`--region`" + `
- The region defaults to the registry host's region`,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/lambda/latest/api/API_GetFunctionConfiguration.html"},
	}

	repositoryNotFoundIssue = &Issue{
		id: RepositoryNotFoundId,
		mdMsg: `
# Repository not found!

The registry URI names a repository that does not exist.

## Things you can try:
~~~
$ aws ecr describe-repositories --region <region>
~~~`,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/AmazonECR/latest/userguide/repository-create.html"},
	}

	smokeCheckFailedIssue = &Issue{
		id: SmokeCheckFailedId,
		mdMsg: `
# Smoke check failed!

The locally running image did not answer with the expected body.

## Things you can try:
- Check the container logs:
~~~
$ docker logs <name>
~~~
- Make sure ` + "`--port`" + ` maps the port your application listens on`,
		docLinks: []HttpLink{"https://docs.aws.amazon.com/lambda/latest/dg/images-test.html"},
	}

	configInvalidIssue = &Issue{
		id: ConfigInvalidId,
		mdMsg: `
# Invalid configuration!

A ` + "`LAMBDADO_*`" + ` environment variable or flag holds a value outside its allowed range.

## Allowed values:
- ` + "`credentials`" + `: sdk | cli
- ` + "`poll.interval`" + `: a positive duration such as 5s
- ` + "`poll.max_attempts`" + `: 1 or more
- ` + "`ui.log_level`" + `: debug | info | warn | error`,
		docLinks: []HttpLink{"https://pkg.go.dev/time#ParseDuration"},
	}

	issues = map[Id]*Issue{
		engineNotFoundIssue.Id():        engineNotFoundIssue,
		malformedReferenceIssue.Id():    malformedReferenceIssue,
		externalCommandFailedIssue.Id(): externalCommandFailedIssue,
		authenticationFailedIssue.Id():  authenticationFailedIssue,
		digestNotFoundIssue.Id():        digestNotFoundIssue,
		convergenceTimeoutIssue.Id():    convergenceTimeoutIssue,
		updateFailedIssue.Id():          updateFailedIssue,
		functionNotFoundIssue.Id():      functionNotFoundIssue,
		repositoryNotFoundIssue.Id():    repositoryNotFoundIssue,
		smokeCheckFailedIssue.Id():      smokeCheckFailedIssue,
		configInvalidIssue.Id():         configInvalidIssue,
	}
)

// Values returns every catalog page ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for v := range maps.Values(issues) {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
