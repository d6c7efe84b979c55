// The main package for the bizdir executable.
package main

import (
	"os"

	"github.com/JakeFAU/bizdir-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
