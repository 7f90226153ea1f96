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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zombiezen.com/go/kdbcodec/pkg/pwgen"
)

var pwgenFlags struct {
	length      int
	symbols     bool
	phrase      bool
	words       int
	wordsFile   string
	possessives bool
}

func init() {
	pwgenCmd.Flags().IntVarP(&pwgenFlags.length, "length", "n", 20,
		"password length in characters")
	pwgenCmd.Flags().BoolVarP(&pwgenFlags.symbols, "symbols", "s", false,
		"include punctuation in the character set")
	pwgenCmd.Flags().BoolVar(&pwgenFlags.phrase, "phrase", false,
		"generate a passphrase instead of a password")
	pwgenCmd.Flags().IntVarP(&pwgenFlags.words, "words", "w", 6,
		"number of passphrase words")
	pwgenCmd.Flags().StringVar(&pwgenFlags.wordsFile, "words-file", "/usr/share/dict/words",
		"dictionary with one word per line")
	pwgenCmd.Flags().BoolVar(&pwgenFlags.possessives, "possessives", false,
		"allow possessive forms in passphrases")
}

var pwgenCmd = &cobra.Command{
	Use:   "pwgen",
	Short: "Generate a random password or passphrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pwgenFlags.phrase {
			f, err := os.Open(pwgenFlags.wordsFile)
			if err != nil {
				return err
			}
			defer f.Close()
			wl, err := pwgen.LoadWordList(f)
			if err != nil {
				return err
			}
			phrase, err := pwgen.Passphrase(nil, wl, pwgenFlags.words, pwgenFlags.possessives)
			if err != nil {
				return err
			}
			fmt.Println(phrase)
			return nil
		}
		set := pwgen.Alphanumeric
		if pwgenFlags.symbols {
			set += pwgen.Symbols
		}
		pw, err := pwgen.Password(nil, pwgenFlags.length, set)
		if err != nil {
			return err
		}
		fmt.Println(pw)
		return nil
	},
}
