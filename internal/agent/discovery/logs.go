package discovery

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// OpenLogs implements logtail.LogOpener against the Docker Engine API,
// demultiplexing the combined stdout/stderr stream with stdcopy exactly as
// the teacher's docker runtime does for bot log retrieval.
func (d *DockerSource) OpenLogs(ctx context.Context, containerName string) (io.ReadCloser, error) {
	raw, err := d.cli.ContainerLogs(ctx, containerName, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Since:      strconv.FormatInt(time.Now().Unix(), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: opening log stream: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, raw)
		raw.Close()
		pw.CloseWithError(copyErr)
	}()
	return pr, nil
}
