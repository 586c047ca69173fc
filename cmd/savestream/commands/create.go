// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/croteam-tools/savestream/cmd/savestream/cli"
	"github.com/croteam-tools/savestream/lib/ctse"
	"github.com/croteam-tools/savestream/lib/sigstream"
)

func createCommand() *cli.Command {
	var (
		configPath    string
		streamName    string
		userID        string
		endian        string
		guessName     bool
		unrestricted  bool
		noSign        bool
		noGz          bool
		format        string
		keyName       string
		streamVersion uint32
		blockSize     uint32
	)

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
		fs.StringVar(&configPath, "config", "", "config file (overrides SAVESTREAM_CONFIG)")
		fs.StringVarP(&streamName, "stream-name", "m", "", "stream identity to bind into the digests")
		fs.StringVarP(&userID, "userid", "u", "", "platform user id to bind into the digests")
		fs.StringVarP(&endian, "endian", "e", "little", "stream byte order (little or big)")
		fs.BoolVarP(&guessName, "guess-stream-name", "g", false, "infer the stream identity from the output file name")
		fs.BoolVar(&unrestricted, "unrestricted", false, "the profile is the unrestricted (cheats-enabled) variant")
		fs.BoolVar(&noSign, "no-sign", false, "write an unsigned stream")
		fs.BoolVar(&noGz, "no-gz", false, "write a raw signature stream without gzip framing")
		fs.StringVarP(&format, "format", "f", "raw", "input format: raw, json or cbor")
		fs.StringVarP(&keyName, "key-name", "k", "", "signing key name (default from config)")
		fs.Uint32VarP(&streamVersion, "stream-version", "s", 0, "envelope version to write (default from config)")
		fs.Uint32Var(&blockSize, "block-size", 0, "signing block size in bytes (default from config)")
		return fs
	}

	run := func(args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("usage: savestream create <in> <save> [flags]")
		}
		inPath, savePath := args[0], args[1]

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		order, err := parseByteOrder(endian)
		if err != nil {
			return err
		}
		method, err := cfg.Method()
		if err != nil {
			return err
		}
		ring, err := cfg.Ring()
		if err != nil {
			return err
		}
		logger := cli.NewCommandLogger().With("command", "create")

		if streamName == "" && guessName {
			if guessed, ok := GuessStreamName(filepath.Base(savePath), unrestricted); ok {
				logger.Info("using stream identity inferred from file name", "stream_name", guessed)
				streamName = guessed
			}
		}
		if userID == "" {
			userID = cfg.UserID
		}
		if keyName == "" {
			keyName = cfg.Write.KeyName
		}
		if streamVersion == 0 {
			streamVersion = cfg.Write.Version
		}
		if blockSize == 0 {
			blockSize = cfg.Write.BlockSize
		}

		payload, err := loadPayload(inPath, format, order)
		if err != nil {
			return err
		}

		opts := sigstream.WriteOptions{
			Order:     order,
			Version:   streamVersion,
			BlockSize: blockSize,
			Method:    method,
		}
		if !noSign {
			opts.Sign = &sigstream.SignRequest{
				Ring:       ring,
				KeyName:    keyName,
				StreamName: streamName,
				UserID:     userID,
			}
		}

		var out []byte
		if noGz {
			out, err = sigstream.Write(payload, opts)
		} else {
			out, err = sigstream.WriteGz(payload, opts, cfg.Write.GzipLevel)
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(savePath, out, 0644); err != nil {
			return err
		}

		logger.Info("created",
			"bytes", len(out),
			"signed", !noSign,
			"fingerprint", sigstream.PayloadFingerprint(payload).String())
		return nil
	}

	return &cli.Command{
		Name:    "create",
		Summary: "Pack a payload or document into a save file",
		Description: "Create encodes a raw container payload, a JSON document " +
			"or a CBOR document into a signed, gzip-wrapped save the engine " +
			"accepts. Signing uses the local game key unless configured " +
			"otherwise.",
		Usage: "savestream create <in> <save> [flags]",
		Examples: []cli.Example{
			{
				Description: "Pack an edited JSON document back into a profile",
				Command:     "savestream create profile.json PlayerProfile.dat --format json --guess-stream-name --userid 1100001075d8dea",
			},
			{
				Description: "Wrap raw container bytes without signing",
				Command:     "savestream create all.bin All.dat --no-sign",
			},
		},
		Flags: flags,
		Run:   run,
	}
}

// loadPayload reads the input file and, for document formats, encodes
// it back into container bytes.
func loadPayload(path, format string, order binary.ByteOrder) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case "raw":
		return data, nil
	case "json", "cbor":
		var meta *ctse.Meta
		if format == "json" {
			meta, err = ctse.FromJSON(data)
		} else {
			meta, err = ctse.FromCBOR(data)
		}
		if err != nil {
			return nil, err
		}
		return meta.Encode(order)
	default:
		return nil, fmt.Errorf("unknown format %q (want raw, json or cbor)", format)
	}
}
