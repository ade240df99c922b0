// Command addfriend serves the add-friend-by-email form.
package main

import (
	"context"
	"log"

	"github.com/dalemusser/addfriend/app"
	"github.com/dalemusser/addfriend/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
