package main

import (
	"github.com/emmy19999/bingham-bites/internal/app"
	"github.com/emmy19999/bingham-bites/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
