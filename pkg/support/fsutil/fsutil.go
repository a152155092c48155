// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the paths given in command lines.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// ExpandPath replaces a leading "~" or "~user" by the user's home directory, and cleans the result.
//
// It returns an error if the user is unknown (e.g: `~unknown/...`).
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return filepath.Clean(path), nil
	}
	var userName string
	if path != "~" && !strings.HasPrefix(path, "~/") {
		userName, _, _ = strings.Cut(path[1:], "/")
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", path)
	}
	return filepath.Join(usr.HomeDir, path[1+len(userName):]), nil
}

// SameFile returns whether both paths refer to the same existing file.
// Missing files are never the same.
func SameFile(path1, path2 string) (bool, error) {
	info1, err := os.Stat(path1)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "failed to stat %q", path1)
	}
	info2, err := os.Stat(path2)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "failed to stat %q", path2)
	}
	return os.SameFile(info1, info2), nil
}
