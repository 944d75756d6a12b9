package main

import (
	"os"

	"github.com/msageha/selfcal/internal/cmd"
)

const version = "1.0.0"

func main() {
	os.Exit(cmd.Execute(version))
}
