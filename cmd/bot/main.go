package main

import (
	"os"
	_ "time/tzdata"

	"github.com/vitos/trade_lifecycle/cmd/bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
