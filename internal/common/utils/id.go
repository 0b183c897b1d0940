// Package utils provides utility functions shared across the orchestrator.
//
// This package contains common utilities for ID generation and other
// helper functions used throughout the application.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateRandomID generates a cryptographically secure random hex ID.
//
// Creates a random ID of the specified length using crypto/rand.
// The resulting string will contain hexadecimal characters (0-9, a-f).
// Each byte generates 2 hex characters, so length/2 bytes are generated.
func GenerateRandomID(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateUUID generates a cryptographically secure UUID v4.
//
// Creates a random UUID conforming to RFC 4122 version 4. The returned
// UUID is suitable for use as a unique identifier in databases and
// distributed systems.
func GenerateUUID() (string, error) {
	uuid := make([]byte, 16)
	if _, err := rand.Read(uuid); err != nil {
		return "", err
	}

	// Set version (4) and variant bits
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%x-%x-%x-%x-%x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:]), nil
}

// GenerateRunID generates a unique pipeline run ID.
//
// Creates a run ID in the format "run-{randomHex}-{timestamp}" where
// randomHex is a 16-character random hex string and timestamp is the
// current Unix timestamp. Run IDs are unique across instances and
// sortable by creation time.
func GenerateRunID() (string, error) {
	id, err := GenerateRandomID(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return fmt.Sprintf("run-%s-%d", id, time.Now().Unix()), nil
}

// MustGenerateRunID generates a run ID or panics on failure.
//
// Panics if random ID generation fails, which typically indicates
// system-level issues with the random number generator.
func MustGenerateRunID() string {
	id, err := GenerateRunID()
	if err != nil {
		panic(fmt.Sprintf("failed to generate run ID: %v", err))
	}
	return id
}
