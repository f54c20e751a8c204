package main

import (
	"context"
	"log"

	"github.com/MrSnakeDoc/pulse/cmd/pulse/commands"
	"github.com/MrSnakeDoc/pulse/internal/app"
)

func main() {
	serve := func() error { return app.New().Run() }
	if err := commands.New(serve).Execute(context.Background()); err != nil {
		log.Fatalf("❌ pulse failed: %v", err)
	}
}
