// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"errors"
	"strings"

	"github.com/siemens/namon"
	"github.com/siemens/namon/cli"
	"github.com/siemens/namon/config"
	"github.com/thediveo/go-plugger/v3"
)

// NewSource returns a suitable packet source for the specified configuration
// by asking the registered source factories one after another until the first
// one returns a source or an error.
func NewSource(cfg *config.Config) (namon.PacketSource, error) {
	for _, newSource := range plugger.Group[cli.NewSource]().Symbols() {
		src, err := newSource(cfg)
		if err != nil {
			return nil, err
		}
		if src != nil {
			return src, nil
		}
	}
	plugins := strings.Join(plugger.Group[cli.NewSource]().Plugins(), ", ")
	if plugins == "" {
		plugins = "(none)"
	}
	return nil, errors.New("no packet source specified; available sources: " + plugins)
}
