package app

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"rfnode/pkg/radio"
)

// VERSION holds the version information with the following logic in mind
//  1 ... fixed
//  0 ... year 2024, 1->year 2025, etc.
//  10 .. month of year (10=October)
//  the date format after the + is always the first of the month
//
// VERSION differs from semantic versioning as described in https://semver.org/
// but we keep the correct syntax.
const (
	VERSION = "1.0.10+20241001"
	MODULE  = "rfnode"
)

// HandleVersion is the get application version web handler.
// Besides the build it reports the device type and radio the receiver decodes.
func (app *App) HandleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request version")

		p := app.rx.Profile()
		return ctx.JSON(fiber.Map{
			"version":     VERSION,
			"description": MODULE,
			"about":       Version(),
			"device":      app.rx.Device().String(),
			"radio":       radioName(p.Radio),
			"timing":      fmt.Sprintf("sync %d, short %d, long %d usec", p.SyncWidth, p.ShortWidth, p.LongWidth),
		})
	}
}

// Version is the get application version as string, e.g. "rfnode V1.0.10".
func Version() string {
	release, _, _ := strings.Cut(VERSION, "+")
	return MODULE + " V" + release
}

func radioName(r radio.RadioType) string {
	switch r {
	case radio.RadioRXB6315:
		return "RXB6 315 MHz"
	case radio.RadioRXB6433:
		return "RXB6 433 MHz"
	}
	return "unknown"
}
