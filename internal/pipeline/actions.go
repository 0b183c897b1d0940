package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"conveyor/internal/common/errors"
)

// ArtifactUpload reads a file from the workspace and uploads it to the
// artifact store. Repository, Version, Filename and Path are expanded
// against the step's environment, so builders can reference run parameters
// like ${VERSION}.
type ArtifactUpload struct {
	Repository string
	Version    string
	Filename   string
	Path       string // workspace-relative path of the file to upload
	Overwrite  bool
}

// Describe returns a short description for logs and results
func (a *ArtifactUpload) Describe() string {
	return fmt.Sprintf("artifact-upload %s/%s/%s", a.Repository, a.Version, a.Filename)
}

// Execute performs the upload
func (a *ArtifactUpload) Execute(ctx context.Context, sc *StepContext) (string, error) {
	if sc.Artifacts == nil {
		return "", errors.ConfigError("artifact store is not configured")
	}

	repository := sc.Env.Expand(a.Repository)
	version := sc.Env.Expand(a.Version)
	filename := sc.Env.Expand(a.Filename)
	path := sc.Env.Expand(a.Path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(sc.Workdir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}

	if err := sc.Artifacts.Upload(ctx, repository, version, filename, data, a.Overwrite); err != nil {
		return "", err
	}

	return fmt.Sprintf("uploaded %s/%s/%s (%d bytes)", repository, version, filename, len(data)), nil
}

// ArtifactDownload fetches a versioned artifact and writes it into the
// workspace. Fields are expanded against the step's environment.
type ArtifactDownload struct {
	Repository string
	Version    string
	Filename   string
	Path       string // workspace-relative destination path
}

// Describe returns a short description for logs and results
func (a *ArtifactDownload) Describe() string {
	return fmt.Sprintf("artifact-download %s/%s/%s", a.Repository, a.Version, a.Filename)
}

// Execute performs the download
func (a *ArtifactDownload) Execute(ctx context.Context, sc *StepContext) (string, error) {
	if sc.Artifacts == nil {
		return "", errors.ConfigError("artifact store is not configured")
	}

	repository := sc.Env.Expand(a.Repository)
	version := sc.Env.Expand(a.Version)
	filename := sc.Env.Expand(a.Filename)

	data, err := sc.Artifacts.Download(ctx, repository, version, filename)
	if err != nil {
		return "", err
	}

	path := sc.Env.Expand(a.Path)
	if path == "" {
		path = filename
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(sc.Workdir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}

	return fmt.Sprintf("downloaded %s/%s/%s (%d bytes)", repository, version, filename, len(data)), nil
}

// DownstreamBuild triggers a downstream job through the deployment trigger.
// Parameter values are expanded against the step's environment so versions
// produced earlier in the run flow into the downstream job explicitly.
type DownstreamBuild struct {
	JobRef     string
	Parameters map[string]string
	Wait       bool
}

// Describe returns a short description for logs and results
func (a *DownstreamBuild) Describe() string {
	return fmt.Sprintf("downstream-build %s", a.JobRef)
}

// Execute triggers the downstream job
func (a *DownstreamBuild) Execute(ctx context.Context, sc *StepContext) (string, error) {
	if sc.Deployments == nil {
		return "", errors.ConfigError("deployment trigger is not configured")
	}

	parameters := make(map[string]string, len(a.Parameters))
	for k, v := range a.Parameters {
		parameters[k] = sc.Env.Expand(v)
	}

	result, err := sc.Deployments.Trigger(ctx, sc.Env.Expand(a.JobRef), parameters, a.Wait)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("downstream %s: run %s %s", a.JobRef, result.RunID, result.Status), nil
}

// Emit publishes a message through the run's notification sink and records
// it in the step output.
type Emit struct {
	Message string
}

// Describe returns a short description for logs and results
func (a *Emit) Describe() string {
	return "emit"
}

// Execute expands and emits the message
func (a *Emit) Execute(ctx context.Context, sc *StepContext) (string, error) {
	message := sc.Env.Expand(a.Message)
	if sc.Emit != nil {
		sc.Emit(message)
	}
	return message, nil
}
