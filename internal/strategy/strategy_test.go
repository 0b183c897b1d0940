package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
)

func testDeps() Deps {
	return Deps{
		ArtifactRepository: "releases",
		DeployJobPrefix:    "deploy-",
		ProdApprovers:      []string{"release-managers"},
	}
}

func TestRouter_Dispatch(t *testing.T) {
	router := NewRouter(DefaultBuilders(testDeps())...)

	graph, err := router.Build(RunRequest{Application: "nodejs-vm", Component: "cart"})
	require.NoError(t, err)
	assert.Equal(t, "cart-nodejs-vm", graph.Name)
	require.NoError(t, graph.Validate())
}

func TestRouter_UnrecognizedStrategy(t *testing.T) {
	router := NewRouter(DefaultBuilders(testDeps())...)

	_, err := router.Build(RunRequest{Application: "cobol-mainframe", Component: "ledger"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUnrecognizedStrategy))

	// Exact match only, no prefix fallback.
	_, err = router.Build(RunRequest{Application: "nodejs", Component: "cart"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUnrecognizedStrategy))
}

func TestRouter_RequiresApplication(t *testing.T) {
	router := NewRouter(DefaultBuilders(testDeps())...)

	_, err := router.Build(RunRequest{Component: "cart"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func collectNames(stage *pipeline.Stage) []string {
	names := []string{stage.Name}
	for _, child := range stage.Children {
		names = append(names, collectNames(child)...)
	}
	return names
}

func TestBuilders_Deterministic(t *testing.T) {
	router := NewRouter(DefaultBuilders(testDeps())...)
	req := RunRequest{Application: "java-eks", Component: "payments"}

	first, err := router.Build(req)
	require.NoError(t, err)
	second, err := router.Build(req)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, collectNames(first.Root), collectNames(second.Root),
		"the same request must always produce the same graph structure")
	assert.Equal(t, first.Parameters, second.Parameters)
}

func TestBuilders_AllValid(t *testing.T) {
	for _, builder := range DefaultBuilders(testDeps()) {
		t.Run(builder.GetType(), func(t *testing.T) {
			graph, err := builder.Build(RunRequest{Application: builder.GetType(), Component: "svc"})
			require.NoError(t, err)
			require.NoError(t, graph.Validate())
			assert.NotZero(t, graph.Timeout, "every builtin graph declares a global timeout")
		})
	}
}

func TestInfra_GatedApply(t *testing.T) {
	graph, err := Infra{Deps: testDeps()}.Build(RunRequest{Application: "infra", Component: "network"})
	require.NoError(t, err)

	var apply *pipeline.Stage
	for _, child := range graph.Root.Children {
		if child.Name == "Apply" {
			apply = child
		}
	}
	require.NotNil(t, apply)
	require.NotNil(t, apply.Gate, "apply must wait for plan approval")
	assert.Equal(t, []string{"release-managers"}, apply.Gate.Approvers)
	assert.Equal(t, "network-state", apply.Resource, "applies to the same state must serialize")
}

func TestNodeJSVM_ProdDeployGated(t *testing.T) {
	graph, err := NodeJSVM{Deps: testDeps()}.Build(RunRequest{Application: "nodejs-vm", Component: "cart"})
	require.NoError(t, err)

	var deploy *pipeline.Stage
	for _, child := range graph.Root.Children {
		if child.Name == "Deploy" {
			deploy = child
		}
	}
	require.NotNil(t, deploy)

	var prod *pipeline.Stage
	for _, child := range deploy.Children {
		if child.Name == "Production" {
			prod = child
		}
	}
	require.NotNil(t, prod)
	assert.NotNil(t, prod.Gate)
	assert.NotNil(t, prod.When, "production deploy only runs for the prod environment")
}
