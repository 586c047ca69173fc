// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/croteam-tools/savestream/cmd/savestream/cli"
	"github.com/croteam-tools/savestream/lib/ctse"
	"github.com/croteam-tools/savestream/lib/sigstream"
)

func extractCommand() *cli.Command {
	var (
		configPath   string
		streamName   string
		userID       string
		endian       string
		noGuessName  bool
		unrestricted bool
		noGz         bool
		format       string
	)

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
		fs.StringVar(&configPath, "config", "", "config file (overrides SAVESTREAM_CONFIG)")
		fs.StringVarP(&streamName, "stream-name", "m", "", "stream identity bound into the digests")
		fs.StringVarP(&userID, "userid", "u", "", "platform user id bound into the digests")
		fs.StringVarP(&endian, "endian", "e", "little", "stream byte order (little or big)")
		fs.BoolVarP(&noGuessName, "no-guess-stream-name", "n", false, "do not infer the stream identity from the file name")
		fs.BoolVar(&unrestricted, "unrestricted", false, "the profile is the unrestricted (cheats-enabled) variant")
		fs.BoolVar(&noGz, "no-gz", false, "input is a raw signature stream, not gzip-wrapped")
		fs.StringVarP(&format, "format", "f", "raw", "output format: raw, json or cbor")
		return fs
	}

	run := func(args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("usage: savestream extract <save> <out> [flags]")
		}
		savePath, outPath := args[0], args[1]

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		order, err := parseByteOrder(endian)
		if err != nil {
			return err
		}
		ring, err := cfg.Ring()
		if err != nil {
			return err
		}
		logger := cli.NewCommandLogger().With("command", "extract")

		if streamName == "" && !noGuessName {
			if guessed, ok := GuessStreamName(filepath.Base(savePath), unrestricted); ok {
				logger.Info("using stream identity inferred from file name", "stream_name", guessed)
				streamName = guessed
			}
		}
		if userID == "" {
			userID = cfg.UserID
		}

		data, err := os.ReadFile(savePath)
		if err != nil {
			return err
		}

		opts := sigstream.ParseOptions{
			Order:      order,
			Ring:       ring,
			StreamName: streamName,
			UserID:     userID,
			Logger:     logger,
		}
		var stream *sigstream.Stream
		if noGz {
			stream, err = sigstream.Parse(data, opts)
		} else {
			stream, err = sigstream.ParseGz(data, opts)
		}
		if err != nil {
			return err
		}

		out, err := renderPayload(stream.Payload, format, opts)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return err
		}

		logger.Info("extracted",
			"bytes", len(stream.Payload),
			"verified", stream.Verified,
			"fingerprint", sigstream.PayloadFingerprint(stream.Payload).String())
		return nil
	}

	return &cli.Command{
		Name:    "extract",
		Summary: "Unpack a save file into its raw payload or a document",
		Description: "Extract unwraps the gzip framing, verifies the signature " +
			"stream when the signing key and bound identity are available, and " +
			"writes the payload. With --format json or cbor the payload is " +
			"decoded into an editable document.",
		Usage: "savestream extract <save> <out> [flags]",
		Examples: []cli.Example{
			{
				Description: "Unpack a profile into an editable JSON document",
				Command:     "savestream extract PlayerProfile.dat profile.json --format json --userid 1100001075d8dea",
			},
			{
				Description: "Dump the raw container bytes without decoding",
				Command:     "savestream extract All.dat all.bin",
			},
		},
		Flags: flags,
		Run:   run,
	}
}

// renderPayload converts the decompressed container payload into the
// requested output format.
func renderPayload(payload []byte, format string, opts sigstream.ParseOptions) ([]byte, error) {
	switch format {
	case "raw":
		return payload, nil
	case "json", "cbor":
		meta, err := ctse.Parse(payload, ctse.ParseOptions{Order: opts.Order, Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
		if format == "json" {
			return ctse.ToJSON(meta)
		}
		return ctse.ToCBOR(meta)
	default:
		return nil, fmt.Errorf("unknown format %q (want raw, json or cbor)", format)
	}
}
