// Package main is the entry point for the featurehub application
package main

import (
	"github.com/lunamage/featurehub/cmd"
)

func main() {
	cmd.Execute()
}
