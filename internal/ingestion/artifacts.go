package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohankatakam/patchgraph/internal/errors"
	"github.com/rohankatakam/patchgraph/internal/models"
)

// Artifact file names written by a pipeline run
const (
	CurrentPatchFile = "current_patch.json"
	AgentsFile       = "agents.json"
)

// PatchDocumentFile names the artifact holding a segmented patch
func PatchDocumentFile(patchID string) string {
	return fmt.Sprintf("patch_%s.json", patchID)
}

// WriteJSON writes v as indented JSON, creating parent directories
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.InternalErrorf("encode %s: %v", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.FileSystemErrorf(err, "create directory %s", dir)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.FileSystemErrorf(err, "write %s", path)
	}
	return nil
}

// ReadPatchDocument reads a patch document artifact
func ReadPatchDocument(path string) (*models.PatchDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "read patch document %s", path)
	}
	var doc models.PatchDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid patch document "+path)
	}
	if doc.Patch.ID == "" {
		return nil, errors.ValidationErrorf("patch document %s has no patch id", path)
	}
	return &doc, nil
}
