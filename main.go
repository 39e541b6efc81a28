// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"pipjoin/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
