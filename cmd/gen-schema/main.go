// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Command gen-schema writes the JSON Schema for the service config file.
// With --check it only reports whether the committed schema is current.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/contactbook/contactbook/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("gen-schema", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.StringP("out", "o", filepath.Join("schemas", "config.schema.json"), "schema file to write")
	check := fs.Bool("check", false, "fail if the schema file is missing or stale instead of writing it")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating schema: %v\n", err)
		return 1
	}
	schema = append(schema, '\n')

	if *check {
		current, err := os.ReadFile(*out)
		if err != nil || !bytes.Equal(current, schema) {
			fmt.Fprintf(stderr, "%s is out of date; run gen-schema\n", *out)
			return 1
		}
		fmt.Fprintf(stdout, "%s is up to date\n", *out)
		return 0
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o750); err != nil {
		fmt.Fprintf(stderr, "Error creating directory: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, schema, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing file: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Generated %s\n", *out)
	return 0
}
