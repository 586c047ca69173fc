// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package sigstream

import "errors"

// Error categories. Everything this package returns wraps one of
// these, so callers can classify failures with errors.Is without
// string matching.
var (
	// ErrFormat marks structural problems: wrong magic, impossible
	// declared sizes, truncated data. Always fatal; no partial result
	// is returned.
	ErrFormat = errors.New("malformed signature stream")

	// ErrIntegrity marks a failed signature check on the header or a
	// content block when verification was possible (key known, bound
	// context supplied).
	ErrIntegrity = errors.New("signature verification failed")

	// ErrVersion marks an envelope version whose field layout this
	// package does not implement.
	ErrVersion = errors.New("unsupported signature stream version")
)
