package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/domain/model"
)

var _ core.ArtifactStore = (*FileArtifactStore)(nil)

// DefaultArtifactURLPrefix is the public path under which artifacts are served.
const DefaultArtifactURLPrefix = "/reports"

// FileArtifactStoreOptions configures a FileArtifactStore.
type FileArtifactStoreOptions struct {
	// Dir is the directory artifacts are written to. Required.
	Dir string
	// URLPrefix is prepended to the file name to build the stored reference.
	URLPrefix string
}

// FileArtifactStore writes report artifacts as JSON files in a local directory.
type FileArtifactStore struct {
	dir       string
	urlPrefix string
}

// NewFileArtifactStore creates the artifact directory if needed and returns a store rooted there.
func NewFileArtifactStore(opts FileArtifactStoreOptions) (*FileArtifactStore, error) {
	if opts.Dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	prefix := opts.URLPrefix
	if prefix == "" {
		prefix = DefaultArtifactURLPrefix
	}
	return &FileArtifactStore{dir: opts.Dir, urlPrefix: prefix}, nil
}

// Dir returns the directory artifacts are stored in.
func (s *FileArtifactStore) Dir() string { return s.dir }

// ArtifactFileName returns the file name used for a job's artifact.
func ArtifactFileName(jobID string) string {
	return "report-" + jobID + ".json"
}

// Write serializes the artifact and atomically replaces report-<jobId>.json.
// The returned reference is URLPrefix/report-<jobId>.json.
func (s *FileArtifactStore) Write(ctx context.Context, artifact *model.Artifact) (string, error) {
	if artifact == nil || artifact.JobID == "" {
		return "", errors.New("artifact with job id is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	name := ArtifactFileName(artifact.JobID)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	return path.Join(s.urlPrefix, name), nil
}
