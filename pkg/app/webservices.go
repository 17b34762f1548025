package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleStats returns the receiver statistics of the last poll.
func (app *App) HandleStats() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request stats")

		app.last.Lock()
		st, enabled := app.last.stats, app.last.enabled
		app.last.Unlock()

		m := statsMessage(st)
		m["enabled"] = enabled
		m["device"] = app.config.Radio.Device
		m["mqttDropped"] = app.mqttDropped.Load()
		return ctx.JSON(m)
	}
}

// HandleMessage returns the last published message.
func (app *App) HandleMessage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request message")

		app.last.Lock()
		defer app.last.Unlock()

		if app.last.message == nil {
			return fiber.NewError(fiber.StatusNotFound, "no message received")
		}
		return ctx.JSON(app.last.message)
	}
}

// HandleReading returns the last decoded sensor reading.
func (app *App) HandleReading() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request reading")

		app.last.Lock()
		defer app.last.Unlock()

		if app.last.reading == nil {
			return fiber.NewError(fiber.StatusNotFound, "no reading received")
		}
		return ctx.JSON(app.last.reading)
	}
}
