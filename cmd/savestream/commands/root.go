// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the savestream command tree: extract,
// create, info and version.
package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/croteam-tools/savestream/cmd/savestream/cli"
	"github.com/croteam-tools/savestream/lib/config"
)

// Root returns the top-level command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "savestream",
		Summary: "Codec for signed, compressed game save containers",
		Description: "savestream converts between the engine's signed save " +
			"container format and editable documents, and packs edited " +
			"documents back into saves the engine accepts.",
		Subcommands: []*cli.Command{
			extractCommand(),
			createCommand(),
			infoCommand(),
			versionCommand(),
		},
	}
}

// loadConfig resolves the configuration: the --config flag when
// given, otherwise the SAVESTREAM_CONFIG environment variable,
// otherwise built-in defaults.
func loadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		return config.LoadFile(flagPath)
	}
	return config.Load()
}

// parseByteOrder resolves an --endian flag value.
func parseByteOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "little", "l":
		return binary.LittleEndian, nil
	case "big", "b":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q (want little or big)", name)
	}
}
