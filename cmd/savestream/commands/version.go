// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/croteam-tools/savestream/cmd/savestream/cli"
	"github.com/croteam-tools/savestream/lib/version"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print build version information",
		Usage:   "savestream version",
		Run: func(args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
