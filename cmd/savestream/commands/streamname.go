// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import "strings"

// GuessStreamName maps a save file's name to the stream identity the
// engine binds into its digests. The engine names memory streams
// after the file they serialize, so the file name is usually enough
// to recover the identity without asking the user.
//
// Backup copies ("PlayerProfile.dat.bak", "PlayerProfile.dat~") carry
// the identity of the file they back up, so backup suffixes are
// stripped before matching.
//
// unrestricted forces the unrestricted profile variant even when the
// file name does not say so, for profiles saved with cheats enabled.
func GuessStreamName(fileName string, unrestricted bool) (string, bool) {
	name := fileName
	for {
		switch {
		case strings.HasSuffix(name, "~"):
			name = strings.TrimSuffix(name, "~")
		case strings.HasSuffix(name, ".bak"):
			name = strings.TrimSuffix(name, ".bak")
		default:
			switch {
			case strings.Contains(name, "PlayerProfile"):
				if unrestricted || strings.Contains(name, "unrestricted") {
					return "<memory stream:PlayerProfile_unrestricted.dat>", true
				}
				return "<memory stream:PlayerProfile.dat>", true
			case strings.Contains(name, "All"):
				return "Content/Talos/All.dat", true
			case strings.Contains(name, "DLC"):
				return "Content/Talos/DLC.dat", true
			default:
				return "", false
			}
		}
	}
}
