/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package executor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pingcap/errors"
)

// JoinArgs quotes every argument for the platform shell and joins them with spaces
func JoinArgs(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, QuoteArg(a))
	}
	return strings.Join(quoted, " ")
}

func isSafeArgRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(safeArgPunct, r)
}

// shellWords splits the first n words of the first command of cmdline, honouring the
// quotes and escape of the platform shell
func shellWords(cmdline string, n int) []string {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		escaped bool
		quote   rune
	)
	for _, r := range cmdline {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == argEscape:
			escaped, inWord = true, true
		case strings.ContainsRune(argQuotes, r):
			quote, inWord = r, true
		case strings.ContainsRune(" \t\r\n;&|<>()", r):
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
				if len(words) == n {
					return words
				}
			}
			if !strings.ContainsRune(" \t", r) {
				return words
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}

// programPath returns the program cmdline runs when it is named by a path, a leading
// exec is skipped. Commands resolved through PATH and shell builtins return "".
func programPath(cmdline string) string {
	words := shellWords(cmdline, 2)
	if len(words) > 0 && words[0] == "exec" {
		words = words[1:]
	}
	if len(words) == 0 || !strings.ContainsAny(words[0], pathSeparators) {
		return ""
	}
	return words[0]
}

// checkProgram fails when the program named by cmdline is missing or cannot be
// executed, the shell would only report it through the exit status
func checkProgram(workDir, cmdline string) error {
	prog := programPath(cmdline)
	if prog == "" {
		return nil
	}
	path := prog
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return errors.Errorf("%s is a directory", prog)
	}
	if !isExecutable(fi) {
		return errors.Errorf("%s is not executable", prog)
	}
	return nil
}
