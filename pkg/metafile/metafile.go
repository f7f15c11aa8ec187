package metafile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// MetaFileName is the name of the snapshot metadata file.
const MetaFileName = ".pgl-retention.meta.json"

// MetafileContent holds the contents of the metadatafile.
type MetafileContent struct {
	Version      string    `json:"version"`
	UUID         string    `json:"uuid"`
	TimestampUTC time.Time `json:"timestampUTC"`
	// Name is the user assigned label. Named snapshots can be protected from removal.
	Name string `json:"name,omitempty"`
	// Failed marks a snapshot whose backup run did not complete.
	Failed bool `json:"failed,omitempty"`
}

// Write creates and writes the metafile into a given snapshot directory.
func Write(dirPath string, content *MetafileContent) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}

	// Snapshot contents are commonly shared with a backup group, so the metafile is group writable.
	if err := os.WriteFile(metaFilePath, jsonData, util.UserGroupWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	return nil
}

// Read opens and parses the metafile in a given snapshot directory.
// A missing file is returned unwrapped so callers can test it with os.IsNotExist.
func Read(dirPath string) (MetafileContent, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		return MetafileContent{}, err
	}
	defer metaFile.Close()

	var content MetafileContent
	decoder := json.NewDecoder(metaFile)
	if err := decoder.Decode(&content); err != nil {
		return MetafileContent{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}
	return content, nil
}

// ReadOptional is Read, but a missing metafile yields a zero value and ok=false instead of an error.
func ReadOptional(dirPath string) (content MetafileContent, ok bool, err error) {
	content, err = Read(dirPath)
	if errors.Is(err, os.ErrNotExist) {
		return MetafileContent{}, false, nil
	}
	if err != nil {
		return MetafileContent{}, false, err
	}
	return content, true, nil
}
