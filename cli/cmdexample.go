// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package cli

import (
	"strings"

	"github.com/thediveo/go-plugger/v3"
)

// Examples collects all examples for the specified command from the registered
// plugins, in plugin order. The examples of different plugins are separated
// by empty lines; there isn't any trailing newline for the overall section.
func Examples(command string) string {
	var examples []string
	for _, example := range plugger.Group[CommandExamples]().Symbols() {
		if text := strings.TrimRight(example()[command], "\n"); text != "" {
			examples = append(examples, text)
		}
	}
	return strings.Join(examples, "\n\n")
}
