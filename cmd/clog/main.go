// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/robbarry/clog/internal/cli"

func main() {
	cli.Execute()
}
