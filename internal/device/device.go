// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package device derives and persists a stable, privacy-preserving
// fingerprint for the local machine. The fingerprint is a salted hash of a
// platform identifier, so the raw machine id never leaves the host.
package device

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// appSalt is mixed into the hash so the fingerprint cannot be correlated
// with the machine id by other software.
const appSalt = "clog-device-2024"

// b32 is RFC 4648 without padding, lowercase-safe for file names and URLs.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// DefaultPath returns the per-user location of the persisted device id.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".clog", "device_id")
}

// GetOrCreateID returns the device id stored at path, deriving and
// persisting a new one on first use. Once written, the stored value is
// authoritative; the derivation is never repeated, so the id stays stable
// even if the underlying platform identifier later changes.
func GetOrCreateID(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := hashDeviceID(platformID())

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create device id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}

// platformID reads a stable platform identifier, falling back to a random
// one when no stable source is available. Best effort only; the result is
// hashed before persisting.
func platformID() string {
	switch runtime.GOOS {
	case "linux":
		for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := os.ReadFile(p); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return id
				}
			}
		}
	case "darwin":
		if id := macPlatformUUID(); id != "" {
			return id
		}
	}
	return "fallback-" + uuid.NewString()
}

// macPlatformUUID extracts IOPlatformUUID from ioreg output.
func macPlatformUUID() string {
	out, err := exec.Command("ioreg", "-d2", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		parts := strings.Split(line, "\"")
		if len(parts) > 3 {
			return parts[3]
		}
	}
	return ""
}

func hashDeviceID(raw string) string {
	h := sha256.New()
	h.Write([]byte(appSalt))
	h.Write([]byte(raw))
	sum := h.Sum(nil)
	return b32.EncodeToString(sum[:16])
}
