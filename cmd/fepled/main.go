package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"feple/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	err := daemonrun.Run(context.Background(), daemonrun.Options{ConfigPath: *configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fepled:", err)
		os.Exit(1)
	}
}
