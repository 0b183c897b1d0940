package strategy

import (
	"fmt"
	"time"

	"conveyor/internal/pipeline"
)

// Deps carries the shared settings builders bake into their graphs.
type Deps struct {
	// ArtifactRepository is the default repository for build outputs.
	ArtifactRepository string

	// DeployJobPrefix prefixes downstream deployment job references.
	DeployJobPrefix string

	// ProdApprovers may resolve production approval gates.
	ProdApprovers []string
}

func commonParameters() []pipeline.Parameter {
	return []pipeline.Parameter{
		{Name: "ENVIRONMENT", Type: pipeline.ParamChoice, Choices: []string{"dev", "qa", "prod"}, Default: "dev", Description: "target environment"},
		{Name: "VERSION", Type: pipeline.ParamString, Required: true, Description: "version to build and release"},
		{Name: "GIT_REF", Type: pipeline.ParamString, Default: "main", Description: "branch, tag or commit to build"},
		{Name: "SKIP_TESTS", Type: pipeline.ParamBoolean, Default: "false", Description: "skip the test stage"},
	}
}

func checkoutStage(component string) *pipeline.Stage {
	return &pipeline.Stage{
		Name: "Checkout",
		Kind: pipeline.Leaf,
		Steps: []pipeline.Step{
			{Name: "Clone", Command: fmt.Sprintf("git clone --depth 1 --branch ${GIT_REF} git@scm:%s.git .", component)},
		},
	}
}

func testStage(commands ...string) *pipeline.Stage {
	steps := make([]pipeline.Step, len(commands))
	for i, c := range commands {
		steps[i] = pipeline.Step{Command: c}
	}
	return &pipeline.Stage{
		Name:  "Test",
		Kind:  pipeline.Leaf,
		When:  pipeline.Not(pipeline.EnvEquals("SKIP_TESTS", "true")),
		Steps: steps,
	}
}

func prodGate(deps Deps) *pipeline.InputGate {
	return &pipeline.InputGate{
		Message:   "Promote ${VERSION} to production?",
		Approvers: deps.ProdApprovers,
		Timeout:   24 * time.Hour,
	}
}

func postHooks() pipeline.PostHooks {
	return pipeline.PostHooks{
		Always: []*pipeline.Stage{{
			Name:  "Cleanup",
			Kind:  pipeline.Leaf,
			Steps: []pipeline.Step{{Command: "rm -rf .build-tmp"}},
		}},
		Failure: []*pipeline.Stage{{
			Name:  "ReportFailure",
			Kind:  pipeline.Leaf,
			Steps: []pipeline.Step{{Action: &pipeline.Emit{Message: "build of ${VERSION} failed"}}},
		}},
	}
}

// NodeJSVM builds Node.js services deployed to plain virtual machines.
type NodeJSVM struct {
	Deps Deps
}

func (b NodeJSVM) GetType() string { return "nodejs-vm" }

func (b NodeJSVM) Build(req RunRequest) (*pipeline.Graph, error) {
	component := req.Component

	return &pipeline.Graph{
		Name:       fmt.Sprintf("%s-nodejs-vm", component),
		Parameters: commonParameters(),
		Env: map[string]string{
			"COMPONENT": component,
		},
		Timeout: 2 * time.Hour,
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				checkoutStage(component),
				{
					Name: "Build",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Name: "Install", Command: "npm ci"},
						{Name: "Compile", Command: "npm run build"},
					},
				},
				{
					Name: "Verify",
					Kind: pipeline.Parallel,
					Children: []*pipeline.Stage{
						testStage("npm test"),
						{
							Name:  "Lint",
							Kind:  pipeline.Leaf,
							Steps: []pipeline.Step{{Command: "npm run lint", ContinueOnError: true}},
						},
					},
				},
				{
					Name: "Package",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Name: "Pack", Command: fmt.Sprintf("tar czf %s-${VERSION}.tgz dist package.json", component)},
						{Action: &pipeline.ArtifactUpload{
							Repository: b.Deps.ArtifactRepository,
							Version:    "${VERSION}",
							Filename:   fmt.Sprintf("%s-${VERSION}.tgz", component),
							Path:       fmt.Sprintf("%s-${VERSION}.tgz", component),
						}},
					},
				},
				deployVMStage(b.Deps, component),
			},
		},
		Post: postHooks(),
	}, nil
}

func deployVMStage(deps Deps, component string) *pipeline.Stage {
	prodDeploy := &pipeline.Stage{
		Name: "Production",
		Kind: pipeline.Leaf,
		When: pipeline.EnvEquals("ENVIRONMENT", "prod"),
		Gate: prodGate(deps),
		Steps: []pipeline.Step{
			{Action: &pipeline.DownstreamBuild{
				JobRef:     deps.DeployJobPrefix + component + "-vm-prod",
				Parameters: map[string]string{"VERSION": "${VERSION}"},
				Wait:       true,
			}},
		},
		Resource: component + "-prod",
	}
	nonProdDeploy := &pipeline.Stage{
		Name: "NonProduction",
		Kind: pipeline.Leaf,
		When: pipeline.Not(pipeline.EnvEquals("ENVIRONMENT", "prod")),
		Steps: []pipeline.Step{
			{Action: &pipeline.DownstreamBuild{
				JobRef:     deps.DeployJobPrefix + component + "-vm-${ENVIRONMENT}",
				Parameters: map[string]string{"VERSION": "${VERSION}"},
				Wait:       true,
			}},
		},
	}
	return &pipeline.Stage{
		Name:     "Deploy",
		Kind:     pipeline.Sequential,
		Children: []*pipeline.Stage{nonProdDeploy, prodDeploy},
	}
}

// NodeJSEKS builds Node.js services deployed to Kubernetes.
type NodeJSEKS struct {
	Deps Deps
}

func (b NodeJSEKS) GetType() string { return "nodejs-eks" }

func (b NodeJSEKS) Build(req RunRequest) (*pipeline.Graph, error) {
	component := req.Component

	return &pipeline.Graph{
		Name:       fmt.Sprintf("%s-nodejs-eks", component),
		Parameters: commonParameters(),
		Env: map[string]string{
			"COMPONENT": component,
		},
		Timeout: 2 * time.Hour,
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				checkoutStage(component),
				{
					Name: "Build",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Name: "Install", Command: "npm ci"},
						{Name: "Compile", Command: "npm run build"},
					},
				},
				testStage("npm test"),
				{
					Name: "Image",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Name: "Build", Command: fmt.Sprintf("docker build -t registry/%s:${VERSION} .", component)},
						{Name: "Push", Command: fmt.Sprintf("docker push registry/%s:${VERSION}", component)},
					},
				},
				deployEKSStage(b.Deps, component),
			},
		},
		Post: postHooks(),
	}, nil
}

func deployEKSStage(deps Deps, component string) *pipeline.Stage {
	rollout := func(name, env string, gated bool) *pipeline.Stage {
		s := &pipeline.Stage{
			Name: name,
			Kind: pipeline.Leaf,
			Env:  map[string]string{"TARGET_ENV": env},
			Steps: []pipeline.Step{
				{Name: "Rollout", Command: fmt.Sprintf("helm upgrade --install %s chart/ --namespace ${TARGET_ENV} --set image.tag=${VERSION}", component)},
				{Name: "Status", Command: fmt.Sprintf("kubectl rollout status deploy/%s -n ${TARGET_ENV}", component)},
			},
			Resource: component + "-" + env,
		}
		if gated {
			s.Gate = prodGate(deps)
			s.When = pipeline.EnvEquals("ENVIRONMENT", "prod")
		} else {
			s.When = pipeline.EnvEquals("ENVIRONMENT", env)
		}
		return s
	}

	return &pipeline.Stage{
		Name: "Deploy",
		Kind: pipeline.Sequential,
		Children: []*pipeline.Stage{
			rollout("Dev", "dev", false),
			rollout("QA", "qa", false),
			rollout("Production", "prod", true),
		},
	}
}

// JavaVM builds Java services deployed to plain virtual machines.
type JavaVM struct {
	Deps Deps
}

func (b JavaVM) GetType() string { return "java-vm" }

func (b JavaVM) Build(req RunRequest) (*pipeline.Graph, error) {
	component := req.Component

	return &pipeline.Graph{
		Name:       fmt.Sprintf("%s-java-vm", component),
		Parameters: commonParameters(),
		Env: map[string]string{
			"COMPONENT": component,
			"MAVEN_OPTS": "-Xmx1g",
		},
		Timeout: 3 * time.Hour,
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				checkoutStage(component),
				{
					Name:  "Build",
					Kind:  pipeline.Leaf,
					Steps: []pipeline.Step{{Command: "mvn -B -DskipTests package"}},
				},
				testStage("mvn -B test"),
				{
					Name: "Publish",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Action: &pipeline.ArtifactUpload{
							Repository: b.Deps.ArtifactRepository,
							Version:    "${VERSION}",
							Filename:   fmt.Sprintf("%s-${VERSION}.jar", component),
							Path:       fmt.Sprintf("target/%s-${VERSION}.jar", component),
						}},
					},
				},
				deployVMStage(b.Deps, component),
			},
		},
		Post: postHooks(),
	}, nil
}

// JavaEKS builds Java services deployed to Kubernetes.
type JavaEKS struct {
	Deps Deps
}

func (b JavaEKS) GetType() string { return "java-eks" }

func (b JavaEKS) Build(req RunRequest) (*pipeline.Graph, error) {
	component := req.Component

	return &pipeline.Graph{
		Name:       fmt.Sprintf("%s-java-eks", component),
		Parameters: commonParameters(),
		Env: map[string]string{
			"COMPONENT": component,
		},
		Timeout: 3 * time.Hour,
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				checkoutStage(component),
				{
					Name:  "Build",
					Kind:  pipeline.Leaf,
					Steps: []pipeline.Step{{Command: "mvn -B -DskipTests package"}},
				},
				testStage("mvn -B test"),
				{
					Name: "Image",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Name: "Build", Command: fmt.Sprintf("docker build -t registry/%s:${VERSION} .", component)},
						{Name: "Push", Command: fmt.Sprintf("docker push registry/%s:${VERSION}", component)},
					},
				},
				deployEKSStage(b.Deps, component),
			},
		},
		Post: postHooks(),
	}, nil
}

// Infra builds infrastructure-as-code changes: plan, manual approval of
// the plan, then apply.
type Infra struct {
	Deps Deps
}

func (b Infra) GetType() string { return "infra" }

func (b Infra) Build(req RunRequest) (*pipeline.Graph, error) {
	component := req.Component

	return &pipeline.Graph{
		Name: fmt.Sprintf("%s-infra", component),
		Parameters: []pipeline.Parameter{
			{Name: "ENVIRONMENT", Type: pipeline.ParamChoice, Choices: []string{"dev", "qa", "prod"}, Default: "dev", Description: "target environment"},
			{Name: "GIT_REF", Type: pipeline.ParamString, Default: "main", Description: "branch, tag or commit to apply"},
		},
		Env: map[string]string{
			"COMPONENT": component,
		},
		Timeout: time.Hour,
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				checkoutStage(component),
				{
					Name:  "Init",
					Kind:  pipeline.Leaf,
					Steps: []pipeline.Step{{Command: "terraform init -input=false"}},
				},
				{
					Name: "Plan",
					Kind: pipeline.Leaf,
					Steps: []pipeline.Step{
						{Command: "terraform plan -input=false -out=tfplan -var environment=${ENVIRONMENT}"},
					},
				},
				{
					Name: "Apply",
					Kind: pipeline.Leaf,
					Gate: &pipeline.InputGate{
						Message:   "Apply the ${COMPONENT} plan to ${ENVIRONMENT}?",
						Approvers: b.Deps.ProdApprovers,
						Timeout:   8 * time.Hour,
					},
					Steps: []pipeline.Step{
						{Command: "terraform apply -input=false tfplan"},
					},
					Resource: component + "-state",
				},
			},
		},
		Post: postHooks(),
	}, nil
}

// DefaultBuilders returns all builtin strategy builders.
func DefaultBuilders(deps Deps) []Builder {
	return []Builder{
		NodeJSVM{Deps: deps},
		NodeJSEKS{Deps: deps},
		JavaVM{Deps: deps},
		JavaEKS{Deps: deps},
		Infra{Deps: deps},
	}
}
