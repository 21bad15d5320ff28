// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

package gateway

import (
	"strings"
	"unicode"
)

// Pattern derives the logical endpoint pattern for a request: the HTTP method
// plus the path with identifier-like segments replaced by a wildcard. Failures
// against different concrete resources of the same kind then accumulate into
// one counter:
//
//	Pattern("GET", "/tracks/42/stream")  == "GET /tracks/*/stream"
//	Pattern("GET", "/tracks/97/stream")  == "GET /tracks/*/stream"
//
// Query strings are ignored; they parameterize a call, not the endpoint.
func Pattern(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIdentifierSegment(seg) {
			segments[i] = "*"
		}
	}
	return strings.ToUpper(method) + " " + strings.Join(segments, "/")
}

// isIdentifierSegment reports whether a path segment looks like a resource
// identifier rather than a route word: purely numeric, a UUID, or a long
// opaque token mixing letters and digits.
func isIdentifierSegment(seg string) bool {
	if seg == "" {
		return false
	}
	if isNumeric(seg) {
		return true
	}
	if isUUID(seg) {
		return true
	}
	// Long mixed alphanumerics (session keys, hashes) are identifiers;
	// route words never carry digits.
	if len(seg) >= 16 && isAlphanumeric(seg) && hasDigit(seg) {
		return true
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// isUUID matches the canonical 8-4-4-4-12 hex form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}
