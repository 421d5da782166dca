// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Tankstat - Tank Level Monitor Bridge
//
// Keeps a Tuya-style tank level monitor configured from a settings file and
// publishes its reports as capabilities.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/tankstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
