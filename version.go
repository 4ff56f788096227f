// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package namon

// SemVersion is the semantic version of the namon package and CLI.
const SemVersion = "0.9.2"
