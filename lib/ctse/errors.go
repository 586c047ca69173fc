// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package ctse

import "errors"

// Error categories, wrapped by everything this package returns.
var (
	// ErrFormat marks structural problems in the container: wrong
	// tags, count mismatches, unknown kind tags, truncated data.
	// Always fatal; no partial schema or object set is returned.
	ErrFormat = errors.New("malformed container")

	// ErrVersion marks a container version whose record layout this
	// package does not implement.
	ErrVersion = errors.New("unsupported container version")
)
