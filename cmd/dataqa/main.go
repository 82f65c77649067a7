// Package main is the entry point for the dataqa CLI.
package main

import "github.com/capitalize-ai/data-question-platform/internal/cli"

func main() {
	cli.Execute()
}
