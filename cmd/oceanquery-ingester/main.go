package main

import (
	"os"

	"github.com/Abhishekshelar208/oceanquery/cmd/oceanquery-ingester/cmd"
	"github.com/Abhishekshelar208/oceanquery/internal/common"
)

func main() {
	common.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
