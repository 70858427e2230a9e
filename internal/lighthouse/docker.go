package lighthouse

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// DefaultImage is a public image whose entrypoint can run the Lighthouse CLI.
const DefaultImage = "femtopixel/google-lighthouse:latest"

const containerReportDir = "/reports"

// DockerRunner runs Lighthouse in a throwaway container with the per-URL
// output directory bind-mounted.
type DockerRunner struct {
	client *client.Client
	image  string
	opts   Options
	logger *log.Logger
}

// NewDockerRunner creates a Docker client using environment defaults.
func NewDockerRunner(host, img string, opts Options, logger *log.Logger) (*DockerRunner, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		clientOpts = append(clientOpts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if img == "" {
		img = DefaultImage
	}
	return &DockerRunner{client: inner, image: img, opts: opts.withDefaults(), logger: logger}, nil
}

// Ping validates connectivity to the Docker daemon.
func (r *DockerRunner) Ping(ctx context.Context) error {
	ping, err := r.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

func (r *DockerRunner) ensureImage(ctx context.Context) error {
	if _, err := r.client.ImageInspect(ctx, r.image); err == nil {
		return nil
	} else if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}

	r.logger.Info("pulling lighthouse image", "image", r.image)
	rc, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (r *DockerRunner) Run(ctx context.Context, req Request) error {
	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if err := r.ensureImage(runCtx); err != nil {
		return err
	}

	hostDir, err := filepath.Abs(filepath.Dir(req.OutputPath))
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	reportPath := containerReportDir + "/" + filepath.Base(req.OutputPath)

	config := &container.Config{
		Image:      r.image,
		Entrypoint: []string{"lighthouse"},
		Cmd:        req.Settings.Args(req.URL, reportPath),
		Labels:     map[string]string{"lighthouse-report.form-factor": string(req.Settings.FormFactor)},
	}
	hostCfg := &container.HostConfig{
		Binds:   []string{hostDir + ":" + containerReportDir},
		ShmSize: 1 << 30,
	}

	name := fmt.Sprintf("lighthouse-%s-%s", req.Settings.FormFactor, uuid.NewString()[:8])
	created, err := r.client.ContainerCreate(runCtx, config, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("container create: %w", err)
	}
	defer r.removeContainer(context.WithoutCancel(ctx), created.ID)

	if err := r.client.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}

	code, err := r.waitForStop(runCtx, created.ID)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("lighthouse container exited with %d: %s", code, r.logsTail(context.WithoutCancel(ctx), created.ID))
	}

	return WaitForReport(ctx, req.OutputPath, r.opts.PollInterval, r.opts.SettleTimeout)
}

func (r *DockerRunner) waitForStop(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("wait for container stop: %w", err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("wait for container stop: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *DockerRunner) logsTail(ctx context.Context, containerID string) string {
	rc, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "20"})
	if err != nil {
		return err.Error()
	}
	defer rc.Close()
	var out strings.Builder
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return err.Error()
	}
	return tail(out.String(), 2000)
}

func (r *DockerRunner) removeContainer(ctx context.Context, containerID string) {
	err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		r.logger.Warn("failed to remove lighthouse container", "id", containerID, "error", err)
	}
}
