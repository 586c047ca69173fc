// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/croteam-tools/savestream/cmd/savestream/cli"
	"github.com/croteam-tools/savestream/lib/ctse"
	"github.com/croteam-tools/savestream/lib/sigstream"
)

// streamInfo is the JSON shape of the info command's output.
type streamInfo struct {
	Version        uint32 `json:"version"`
	BlockSize      uint32 `json:"block_size"`
	HashMethod     string `json:"hash_method"`
	Salt           uint32 `json:"salt"`
	Signed         bool   `json:"signed"`
	KeyName        string `json:"key_name,omitempty"`
	SignatureSize  uint32 `json:"signature_size"`
	BindsName      bool   `json:"binds_stream_name"`
	BindsUserID    bool   `json:"binds_user_id"`
	Verified       bool   `json:"verified"`
	PayloadSize    int    `json:"payload_size"`
	Fingerprint    string `json:"fingerprint"`
	ContainerError string `json:"container_error,omitempty"`

	Container *containerInfo `json:"container,omitempty"`
}

// containerInfo summarizes the decoded inner container.
type containerInfo struct {
	Version       uint32 `json:"version"`
	VersionString string `json:"version_string,omitempty"`
	Idents        int    `json:"idents"`
	ExternalTypes int    `json:"external_types"`
	Types         int    `json:"types"`
	Objects       int    `json:"objects"`
}

func infoCommand() *cli.Command {
	var (
		configPath   string
		streamName   string
		userID       string
		endian       string
		unrestricted bool
		noGz         bool
		jsonOut      bool
	)

	flags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("info", pflag.ContinueOnError)
		fs.StringVar(&configPath, "config", "", "config file (overrides SAVESTREAM_CONFIG)")
		fs.StringVarP(&streamName, "stream-name", "m", "", "stream identity bound into the digests")
		fs.StringVarP(&userID, "userid", "u", "", "platform user id bound into the digests")
		fs.StringVarP(&endian, "endian", "e", "little", "stream byte order (little or big)")
		fs.BoolVar(&unrestricted, "unrestricted", false, "the profile is the unrestricted (cheats-enabled) variant")
		fs.BoolVar(&noGz, "no-gz", false, "input is a raw signature stream, not gzip-wrapped")
		fs.BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
		return fs
	}

	run := func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: savestream info <save> [flags]")
		}
		savePath := args[0]

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
		logger := cli.NewCommandLogger().With("command", "info")

		if streamName == "" {
			if guessed, ok := GuessStreamName(filepath.Base(savePath), unrestricted); ok {
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

		h := stream.Header
		info := streamInfo{
			Version:       h.Version,
			BlockSize:     h.BlockSize,
			HashMethod:    h.Method().String(),
			Salt:          h.Salt,
			Signed:        h.Signed(),
			KeyName:       h.KeyName,
			SignatureSize: h.SignatureSize,
			BindsName:     h.BindsStreamName(),
			BindsUserID:   h.BindsUserID(),
			Verified:      stream.Verified,
			PayloadSize:   len(stream.Payload),
			Fingerprint:   sigstream.PayloadFingerprint(stream.Payload).String(),
		}

		meta, metaErr := ctse.Parse(stream.Payload, ctse.ParseOptions{Order: order, Logger: logger})
		if metaErr != nil {
			// A payload that is not an object container is still a
			// valid envelope; report it instead of failing.
			if errors.Is(metaErr, ctse.ErrFormat) || errors.Is(metaErr, ctse.ErrVersion) {
				info.ContainerError = metaErr.Error()
			} else {
				return metaErr
			}
		} else {
			info.Container = &containerInfo{
				Version:       meta.Version,
				VersionString: meta.VersionString,
				Idents:        len(meta.Idents),
				ExternalTypes: len(meta.ExternalTypes),
				Types:         len(meta.Types),
				Objects:       len(meta.Objects),
			}
		}

		if jsonOut {
			return cli.WriteJSON(info)
		}
		printInfo(&info)

		// A signed save whose signatures could not be checked is worth
		// a distinct exit code for scripting.
		if info.Signed && !info.Verified {
			return &cli.ExitError{Code: 2}
		}
		return nil
	}

	return &cli.Command{
		Name:    "info",
		Summary: "Describe a save file without extracting it",
		Description: "Info parses the envelope and the inner container and " +
			"prints their parameters: versions, hash method, signing key, " +
			"bound identities, verification outcome, and table sizes. Exit " +
			"code 2 means the stream is signed but could not be verified " +
			"with the available keys and identities.",
		Usage: "savestream info <save> [flags]",
		Flags: flags,
		Run:   run,
	}
}

func printInfo(info *streamInfo) {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "envelope version:\t%d\n", info.Version)
	fmt.Fprintf(tw, "block size:\t%#x\n", info.BlockSize)
	fmt.Fprintf(tw, "hash method:\t%s\n", info.HashMethod)
	fmt.Fprintf(tw, "salt:\t%#08x\n", info.Salt)
	if info.Signed {
		fmt.Fprintf(tw, "signing key:\t%s\n", info.KeyName)
		fmt.Fprintf(tw, "signature size:\t%d\n", info.SignatureSize)
		fmt.Fprintf(tw, "binds stream name:\t%t\n", info.BindsName)
		fmt.Fprintf(tw, "binds user id:\t%t\n", info.BindsUserID)
		fmt.Fprintf(tw, "verified:\t%t\n", info.Verified)
	} else {
		fmt.Fprintf(tw, "signed:\tfalse\n")
	}
	fmt.Fprintf(tw, "payload size:\t%d\n", info.PayloadSize)
	fmt.Fprintf(tw, "payload fingerprint:\t%s\n", info.Fingerprint)
	if info.Container != nil {
		c := info.Container
		fmt.Fprintf(tw, "container version:\t%d", c.Version)
		if c.VersionString != "" {
			fmt.Fprintf(tw, " (%s)", c.VersionString)
		}
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "identifiers:\t%d\n", c.Idents)
		fmt.Fprintf(tw, "types:\t%d internal, %d external\n", c.Types, c.ExternalTypes)
		fmt.Fprintf(tw, "objects:\t%d\n", c.Objects)
	}
	if info.ContainerError != "" {
		fmt.Fprintf(tw, "container:\tnot decodable: %s\n", info.ContainerError)
	}
	tw.Flush()
}
