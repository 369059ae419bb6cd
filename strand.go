package main

import (
	"github.com/strand-cloud/strand/cmd"
	"github.com/strand-cloud/strand/pkg/env"
	"github.com/strand-cloud/strand/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("strand failure", "error", err)
	}
}
