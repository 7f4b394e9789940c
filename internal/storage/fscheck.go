package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"afs":    {},
	"ceph":   {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// ensureLocalFilesystem refuses ledger paths on network mounts, where SQLite
// locking is unreliable. Platforms without detection are allowed through.
func ensureLocalFilesystem(path string) error {
	return checkFilesystem(path, detectFilesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	probe, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve ledger path %q: %w", path, err)
	}

	fsType, err := detect(probe)
	if err != nil {
		if errors.Is(err, errDetectUnsupported) {
			return nil
		}
		return fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("ledger path %q is on network filesystem %q; set ledger.path to local disk", path, fsType)
	}
	return nil
}

var errDetectUnsupported = errors.New("filesystem detection unsupported on this platform")

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
