// Package main provides the ipagrab CLI application.
package main

import (
	"log"
	"os"

	"github.com/ipagrab/ipagrab/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
