package main

import (
	"github.com/ndltd-tw/papergraph/internal/server"
	"github.com/ndltd-tw/papergraph/internal/util"
	"github.com/ndltd-tw/papergraph/pkg/logger"
	"github.com/ndltd-tw/papergraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnvString("LOG_FORMAT", console.FormatText),
	})
	logger.Init(consoleLogger)

	server.Init()
}
