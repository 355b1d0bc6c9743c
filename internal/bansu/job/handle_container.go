package job

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/hgonomeg/bansu/internal/bansu/applog"
)

// containerProc is the Container variant of Handle, grounded on
// original_source/src/job/docker.rs (bollard) and rendered against the
// equivalent Go Docker Engine API client (go.mod requires
// github.com/docker/docker; see DESIGN.md).
type containerProc struct {
	cli  *client.Client
	id   string
	name string
}

func newContainerProc(ctx context.Context, pc ProcessConfig, image string) (*containerProc, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}

	name := fmt.Sprintf("bansu-worker-%d", time.Now().UnixNano())

	cmd := append([]string{pc.Executable}, pc.Args...)
	cfg := &container.Config{
		Image:        image,
		Cmd:          cmd,
		WorkingDir:   pc.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: pc.WorkingDir,
				Target: pc.WorkingDir,
			},
		},
	}

	created, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}

	if err := cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		cli.Close()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	return &containerProc{cli: cli, id: created.ID, name: name}, nil
}

func (cp *containerProc) join(ctx context.Context) (*ProcessOutput, error) {
	statusCh, errCh := cp.cli.ContainerWait(ctx, cp.id, container.WaitConditionNotRunning)

	logs, err := cp.cli.ContainerLogs(ctx, cp.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, logs)
		copyDone <- copyErr
	}()

	select {
	case waitErr := <-errCh:
		// The exit status, zero or not, arrives on statusCh; anything on
		// errCh is treated as an infra failure, never as a process exit
		// (see DESIGN.md's Open Question 2 resolution).
		if waitErr != nil {
			return nil, fmt.Errorf("waiting for container: %w", waitErr)
		}
	case result := <-statusCh:
		<-copyDone
		return &ProcessOutput{
			ExitCode: int(result.StatusCode),
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	case <-ctx.Done():
		cp.teardown()
		return nil, ctx.Err()
	}

	return nil, fmt.Errorf("container wait ended without a status")
}

// teardown is a best-effort "remove -> stop -> remove" sequence: a
// container that already finished can be removed directly; one still
// running needs an explicit stop first, so a second remove is always
// attempted. Errors are never propagated to the caller.
func (cp *containerProc) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer cp.cli.Close()

	_ = cp.cli.ContainerRemove(ctx, cp.id, types.ContainerRemoveOptions{Force: false})

	timeout := 5 * time.Second
	if err := cp.cli.ContainerStop(ctx, cp.id, &timeout); err != nil {
		applog.Warn("could not stop container %s: %v", cp.id, err)
	}

	if err := cp.cli.ContainerRemove(ctx, cp.id, types.ContainerRemoveOptions{Force: true}); err != nil {
		applog.Warn("could not remove container %s: %v", cp.id, err)
	}
}
