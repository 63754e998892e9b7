// Package importer hands committed ebooks to an external library manager.
package importer

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// ErrDuplicate is returned when the library already holds the book.
var ErrDuplicate = errors.New("book already exists in library")

// Result is what an import reports back.
type Result struct {
	ID     string
	Output string
}

type Importer interface {
	// Add imports every file in dir as a single book.
	Add(ctx context.Context, dir string) (*Result, error)
	// SetMetadata sets one field ("authors", "title", "identifiers", ...).
	SetMetadata(ctx context.Context, id, field, value string) error
	// SetMetadataFile applies an OPF file to the book.
	SetMetadataFile(ctx context.Context, id, path string) error
}

// New returns the importer configured in cfg, or nil when none is.
func New(cfg *config.Config) Importer {
	if cfg.Importer.CalibreDB == "" {
		return nil
	}
	return NewCalibre(cfg.Importer)
}

// Calibre drives the calibredb command line tool.
type Calibre struct {
	binary     string
	libraryURL string
	username   string
	password   string
	timeout    time.Duration
}

func NewCalibre(cfg config.ImporterConfig) *Calibre {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Calibre{
		binary:     cfg.CalibreDB,
		libraryURL: cfg.LibraryURL,
		username:   cfg.Username,
		password:   cfg.Password,
		timeout:    timeout,
	}
}

type runResult struct {
	stdout   string
	stderr   string
	exitCode int
}

func (c *Calibre) run(ctx context.Context, command string, args ...string) (*runResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := append([]string{command}, args...)
	if c.libraryURL != "" {
		full = append(full, "--with-library", c.libraryURL)
	}
	if c.username != "" {
		full = append(full, "--username", c.username)
	}
	if c.password != "" {
		full = append(full, "--password", c.password)
	}

	cmd := exec.CommandContext(ctx, c.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &runResult{stdout: stdout.String(), stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "failed to execute %s", c.binary)
		}
		result.exitCode = exitErr.ExitCode()
	}

	logger.FromContext(ctx).Debug("calibredb finished", logger.Data{
		"command":   command,
		"exit_code": result.exitCode,
		"stdout":    strings.TrimSpace(result.stdout),
		"stderr":    strings.TrimSpace(result.stderr),
	})
	return result, nil
}

const addedPrefix = "Added book ids: "

func (c *Calibre) Add(ctx context.Context, dir string) (*Result, error) {
	res, err := c.run(ctx, "add", "-1", dir)
	if err != nil {
		return nil, err
	}

	// Versions differ on which stream carries the duplicate notice.
	if strings.Contains(res.stdout, "already exist") || strings.Contains(res.stderr, "already exist") {
		return nil, errors.WithStack(ErrDuplicate)
	}
	if res.exitCode != 0 || res.stdout == "" {
		return nil, errors.Errorf("calibredb add exited with %d: %s", res.exitCode, strings.TrimSpace(res.stderr))
	}

	_, after, ok := strings.Cut(res.stdout, addedPrefix)
	if !ok {
		return nil, errors.Errorf("calibredb add reported no book ids: %s", strings.TrimSpace(res.stdout))
	}
	id, _, _ := strings.Cut(after, "\n")
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.Errorf("calibredb add reported an empty book id")
	}

	return &Result{ID: id, Output: res.stdout}, nil
}

func (c *Calibre) SetMetadata(ctx context.Context, id, field, value string) error {
	res, err := c.run(ctx, "set_metadata", "--field", field+":"+value, id)
	if err != nil {
		return err
	}
	if res.exitCode != 0 {
		return errors.Errorf("calibredb set_metadata %s exited with %d: %s", field, res.exitCode, strings.TrimSpace(res.stderr))
	}
	return nil
}

func (c *Calibre) SetMetadataFile(ctx context.Context, id, path string) error {
	res, err := c.run(ctx, "set_metadata", id, path)
	if err != nil {
		return err
	}
	if res.exitCode != 0 {
		return errors.Errorf("calibredb set_metadata exited with %d: %s", res.exitCode, strings.TrimSpace(res.stderr))
	}
	return nil
}
