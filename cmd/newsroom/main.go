package main

import (
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/cmd/handlers"
	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
