package render

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "simp-tracker/backend/pkg/errors"
)

// Options configures the layout renderer
type Options struct {
	Binary  string        // layout executable, e.g. "neato"
	Format  string        // -T output format
	Dir     string        // scratch directory for input/output files
	Timeout time.Duration // per-invocation wall clock budget
}

// contentTypes lists the -T output formats served as images
var contentTypes = map[string]string{
	"png":  "image/png",
	"gif":  "image/gif",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

// formatName strips the renderer and formatter from a -T value ("png:gd" is "png")
func formatName(format string) string {
	name, _, _ := strings.Cut(format, ":")
	return strings.ToLower(strings.TrimSpace(name))
}

// Supported reports whether format produces an image this service can serve
func Supported(format string) bool {
	_, ok := contentTypes[formatName(format)]
	return ok
}

// Renderer runs an external Graphviz layout tool over a dot description
type Renderer struct {
	opts   Options
	logger *zap.Logger
}

// New creates a renderer, filling unset options with defaults
func New(opts Options, logger *zap.Logger) *Renderer {
	if opts.Binary == "" {
		opts.Binary = "neato"
	}
	if opts.Format == "" {
		opts.Format = "png:gd"
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Renderer{opts: opts, logger: logger}
}

// Extension is the file extension of rendered images, without the dot
func (r *Renderer) Extension() string {
	return formatName(r.opts.Format)
}

// ContentType is the MIME type of rendered images
func (r *Renderer) ContentType() string {
	if contentType, ok := contentTypes[r.Extension()]; ok {
		return contentType
	}
	return "application/octet-stream"
}

// Available reports whether the layout binary can be found
func (r *Renderer) Available() error {
	if _, err := exec.LookPath(r.opts.Binary); err != nil {
		return apperrors.NewRenderProcess(r.opts.Binary, "binary not found", err)
	}
	return nil
}

// Render lays out dot and returns the image bytes. The scratch files are
// removed before returning, whatever the outcome.
func (r *Renderer) Render(ctx context.Context, dot string) ([]byte, error) {
	renderID := uuid.NewString()
	input := filepath.Join(r.opts.Dir, renderID+".gv")
	output := filepath.Join(r.opts.Dir, renderID+"."+r.Extension())
	defer r.cleanup(input, output)

	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		r.logger.Error("Could not create render directory", zap.String("dir", r.opts.Dir), zap.Error(err))
		return nil, apperrors.NewScratchIO(r.opts.Dir, err)
	}
	if err := os.WriteFile(input, []byte(dot), 0o600); err != nil {
		r.logger.Error("Could not write render input", zap.String("path", input), zap.Error(err))
		return nil, apperrors.NewScratchIO(input, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.opts.Binary,
		"-T"+r.opts.Format,
		input,
		"-o", output,
		"-Gcharset=UTF-8",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return kill(cmd.Process) }
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			r.logger.Warn("Renderer timed out",
				zap.String("render_id", renderID),
				zap.Duration("timeout", r.opts.Timeout),
			)
			return nil, apperrors.NewRenderTimeout(r.opts.Binary, r.opts.Timeout)
		case errors.Is(runCtx.Err(), context.Canceled):
			return nil, apperrors.NewContextCancelled("render", runCtx.Err())
		default:
			return nil, apperrors.NewRenderProcess(r.opts.Binary, strings.TrimSpace(stderr.String()), err)
		}
	}

	image, err := os.ReadFile(output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewRenderProcess(r.opts.Binary, strings.TrimSpace(stderr.String()), err)
		}
		r.logger.Error("Could not read render output", zap.String("path", output), zap.Error(err))
		return nil, apperrors.NewScratchIO(output, err)
	}
	if len(image) == 0 {
		return nil, apperrors.NewRenderProcess(r.opts.Binary, "empty output", nil)
	}

	r.logger.Debug("Rendered graph",
		zap.String("render_id", renderID),
		zap.Int("dot_bytes", len(dot)),
		zap.Int("image_bytes", len(image)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return image, nil
}

func (r *Renderer) cleanup(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("Could not remove render scratch file", zap.String("path", path), zap.Error(err))
		}
	}
}

// kill terminates p; a process that already exited is not an error.
func kill(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
