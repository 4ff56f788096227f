// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package command

import (
	"github.com/spf13/cobra"
	"github.com/thediveo/klo"
)

// addPrinterFlags adds the kubectl-like output flags to the specified command.
func addPrinterFlags(cmd *cobra.Command, sortby string) {
	cmd.Flags().StringP("output", "o", "",
		"Output format. One of: json|yaml|wide|custom-columns=...|custom-columns-file=...|jsonpath=...|jsonpath-file=...")
	cmd.Flags().Bool("no-headers", false, "When using the default or custom-column output format, don't print headers (default print headers).")
	cmd.Flags().String("sort-by", sortby,
		"If non-empty, sort custom-columns using this field specification. The field specification is expressed as a JSONPath expression (e.g. '{.Name}').")
}

// getPrinter returns a value printer configured according to the output format
// chosen by the user, and some more optional output configuration flags. The
// specs define the builtin default and wide custom-columns templates.
func getPrinter(cmd *cobra.Command, specs *klo.Specs) (prn klo.ValuePrinter, err error) {
	outfmt, err := cmd.LocalFlags().GetString("output")
	if err != nil {
		return
	}
	prn, err = klo.PrinterFromFlag(outfmt, specs)
	if err != nil {
		return
	}
	if ccprn, ok := prn.(*klo.CustomColumnsPrinter); ok {
		ccprn.Padding = 3
		if noheaders, err := cmd.LocalFlags().GetBool("no-headers"); err == nil {
			ccprn.HideHeaders = noheaders
		}
	}
	// Throw in sorting, if not explicitly forbidden. It depends on the object
	// printer if it will honor the sorted data or will just impose its own
	// order anyway.
	if sortby, err := cmd.LocalFlags().GetString("sort-by"); err == nil && sortby != "" {
		return klo.NewSortingPrinter(sortby, prn)
	}
	return
}
