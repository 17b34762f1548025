package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// HandleHealth returns data about the health of myself and the receiver.
// output example:
//  {"NumGoroutines":11,"HeapAllocatedMB":3,"SysMemoryMB":12,"Version":"1.0.10+20241001",
//   "ProgLang":"go1.21.4","Receiver":"enabled","ErrorRate":4.2,"Dropped":0}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		hab := m.Alloc
		smb := m.Sys

		app.last.Lock()
		st, enabled := app.last.stats, app.last.enabled
		app.last.Unlock()

		receiver := "disabled"
		if enabled {
			receiver = "enabled"
		}

		healthData := struct {
			NumGoroutines      int
			NumCPU             int
			HeapAllocatedBytes uint64
			HeapAllocatedMB    uint64
			SysMemoryBytes     uint64
			SysMemoryMB        uint64
			Version            string
			ProgLang           string
			HostName           string
			Time               string
			Receiver           string
			ErrorRate          float64
			Dropped            uint64
		}{
			NumGoroutines:      runtime.NumGoroutine(),
			NumCPU:             runtime.NumCPU(),
			HeapAllocatedBytes: hab,
			HeapAllocatedMB:    bToMb(hab),
			SysMemoryBytes:     smb,
			SysMemoryMB:        bToMb(smb),
			ProgLang:           runtime.Version(),
			Version:            VERSION,
			HostName:           host,
			Time:               time.Now().Format(time.RFC3339),
			Receiver:           receiver,
			ErrorRate:          st.ErrorRate(),
			Dropped:            st.Dropped,
		}
		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}
