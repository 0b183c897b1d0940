package strategy

import (
	"fmt"
	"strings"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
)

// DeploymentGraph builds the pipeline behind a downstream deploy job
// reference like "deploy-cart-vm-prod": fetch the released artifact and
// run the deployment script against the target named by the reference.
// The reference must carry the configured prefix.
func DeploymentGraph(jobRef string, deps Deps) (*pipeline.Graph, error) {
	if jobRef == "" {
		return nil, errors.ValidationError("job reference is required")
	}
	if deps.DeployJobPrefix != "" && !strings.HasPrefix(jobRef, deps.DeployJobPrefix) {
		return nil, errors.NotFoundError(fmt.Sprintf("job %s", jobRef))
	}
	target := strings.TrimPrefix(jobRef, deps.DeployJobPrefix)
	if target == "" {
		return nil, errors.ValidationError("job reference names no deploy target")
	}

	return &pipeline.Graph{
		Name:    jobRef,
		Timeout: time.Hour,
		Env: map[string]string{
			"DEPLOY_TARGET": target,
		},
		Parameters: []pipeline.Parameter{
			{Name: "VERSION", Type: pipeline.ParamString, Required: true, Description: "released version to deploy"},
			{Name: "ARTIFACT", Type: pipeline.ParamString, Required: true, Description: "artifact filename to fetch"},
		},
		Root: &pipeline.Stage{
			Name: "Main",
			Kind: pipeline.Sequential,
			Children: []*pipeline.Stage{
				{
					Name:    "Fetch",
					Kind:    pipeline.Leaf,
					Timeout: 10 * time.Minute,
					Steps: []pipeline.Step{
						{Action: &pipeline.ArtifactDownload{
							Repository: deps.ArtifactRepository,
							Version:    "${VERSION}",
							Filename:   "${ARTIFACT}",
							Path:       "${ARTIFACT}",
						}},
					},
				},
				{
					Name:     "Deploy",
					Kind:     pipeline.Leaf,
					Timeout:  30 * time.Minute,
					Resource: target,
					Steps: []pipeline.Step{
						{Command: "./deploy.sh ${DEPLOY_TARGET} ${ARTIFACT}"},
					},
				},
			},
		},
	}, nil
}
