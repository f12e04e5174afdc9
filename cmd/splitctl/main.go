// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// splitctl is the admin CLI for the experiment service: create experiments
// from YAML definitions, drive the lifecycle, run analyses, and simulate
// allocation behavior locally.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
