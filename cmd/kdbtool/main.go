// Copyright 2026 The Kdbcodec Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// kdbtool inspects KeePass password databases.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zombiezen.com/go/kdbcodec/pkg/kdb"
)

var rootCmd = &cobra.Command{
	Use:           "kdbtool",
	Short:         "Inspect KeePass 1.x and 2.x password databases",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log decode stages to stderr")
	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(pwgenCmd)
}

func main() {
	cobra.OnInitialize(func() {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kdbtool:", err)
		os.Exit(1)
	}
}

var sniffCmd = &cobra.Command{
	Use:   "sniff FILE",
	Short: "Report a file's database format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		prefix := make([]byte, kdb.SniffLen)
		n, _ := f.Read(prefix)
		format := kdb.Sniff(prefix[:n])
		fmt.Println(format)
		if format == kdb.FormatUnknown {
			return fmt.Errorf("%s: not a password database", args[0])
		}
		return nil
	},
}

var dumpFlags struct {
	password string
	keyFile  string
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFlags.password, "password", "p", "",
		"master password (prompted when omitted)")
	dumpCmd.Flags().StringVarP(&dumpFlags.keyFile, "key-file", "k", "",
		"key file path")
}

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Decrypt a database and print its group tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		creds := kdb.Credentials{Password: dumpFlags.password}
		if !cmd.Flags().Changed("password") {
			pw, err := promptPassword()
			if err != nil {
				return err
			}
			creds.Password = pw
		}
		if dumpFlags.keyFile != "" {
			kf, err := os.Open(dumpFlags.keyFile)
			if err != nil {
				return err
			}
			defer kf.Close()
			creds.KeyFile = kf
		}
		db, err := kdb.Open(data, creds, nil)
		if err != nil {
			return err
		}
		defer db.Erase()
		fmt.Printf("%s (%s format)\n", args[0], db.Format())
		dumpGroup(db.Root(), 0)
		return nil
	},
}

func promptPassword() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal; use --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func dumpGroup(g kdb.Group, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	if depth > 0 {
		fmt.Printf("%s+ %s\n", indent, g.Name())
	}
	for _, e := range g.Entries() {
		line := indent + "  - " + e.Title()
		if u := e.Username(); u != "" {
			line += " (" + u + ")"
		}
		fmt.Println(line)
	}
	for _, sub := range g.Groups() {
		dumpGroup(sub, depth+1)
	}
}
