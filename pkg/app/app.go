package app

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"github.com/womat/debug"

	"rfnode/pkg/acurite"
	"rfnode/pkg/app/config"
	"rfnode/pkg/mqtt"
	"rfnode/pkg/port"
	"rfnode/pkg/radio"
	"rfnode/pkg/raspberry"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler
	// mqttDropped counts messages dropped because the mqtt queue was full
	mqttDropped atomic.Uint64

	// clock timestamps the edges of sources without own timestamps
	clock port.Clock
	// rx is the receiver; it is only serviced by the poll loop
	rx *radio.Receiver
	// source is the edge source feeding rx
	source io.Closer

	// seen holds the recently published messages, acurite sensors repeat every message
	seen *cache.Cache

	// cmd passes enable commands from the mqtt broker to the poll loop
	cmd chan bool

	// last is the state shown by the web services
	last snapshot

	// quit stops the poll loop
	quit chan struct{}
	// wg waits for the poll loop
	wg sync.WaitGroup
}

// snapshot is the last known receiver state, updated by the poll loop.
type snapshot struct {
	sync.Mutex
	stats   radio.Stats
	enabled bool
	message *Message
	reading *acurite.Reading
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	clock := port.NewSystemClock()

	return &App{
		config:    config,
		urlParsed: u,

		web:   fiber.New(),
		mqtt:  mqtt.New(),
		clock: clock,
		rx:    radio.New(config.Radio.Buffer, clock),
		seen:  cache.New(config.Radio.Dedup, 2*config.Radio.Dedup),
		cmd:   make(chan bool, 1),

		quit: make(chan struct{}),
	}, err
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()

	app.wg.Add(1)
	go app.receive()

	app.sendMQTT(topicStatus, statusOnline, true)
	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	app.rx.BaselineFromEdge(app.config.EdgeSource().Timestamped())

	if app.config.Radio.DeviceType == radio.DeviceCustom {
		err = app.rx.SetProfile(app.config.Profile())
	} else {
		err = app.rx.SelectDeviceType(app.config.Radio.DeviceType)
	}
	if err != nil {
		debug.ErrorLog.Printf("can't configure receiver: %v", err)
		return err
	}

	if app.source, err = raspberry.Open(app.config.EdgeSource(), app.clock, func(t port.Micros) { app.rx.OnEdgeAt(t) }); err != nil {
		debug.ErrorLog.Printf("can't open edge source %q: %v", app.config.Radio.Source, err)
		return err
	}

	will := &mqtt.Will{Topic: app.topic(topicStatus), Payload: statusOffline, Retained: true}
	if err = app.mqtt.Connect(app.config.MQTT.Connection, clientID(), will); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	if app.config.MQTT.Connection != "" {
		if err = app.mqtt.Subscribe(app.topic(topicCmd), app.handleCommand); err != nil {
			debug.ErrorLog.Printf("can't subscribe %v: %v", app.topic(topicCmd), err)
			return err
		}
	}

	// initRoutes and initDefaultRoutes should be always called last because it may access things like app.api
	// which must be initialized before in initAPI()
	app.initDefaultRoutes()

	return nil
}

// Close stops the receiver and releases the edge source and the broker connection.
func (app *App) Close() error {
	if app.source != nil {
		_ = app.source.Close()
	}

	if app.quit != nil {
		close(app.quit)
		app.wg.Wait()
	}

	if app.mqtt != nil {
		if app.config != nil && app.config.MQTT.Connection != "" {
			status := mqtt.Message{Topic: app.topic(topicStatus), Payload: []byte(statusOffline), Qos: 1, Retained: true}
			if err := app.mqtt.Publish(status); err != nil {
				debug.ErrorLog.Printf("publishing status: %v", err)
			}
		}
		_ = app.mqtt.Disconnect()
	}

	if app.web != nil {
		_ = app.web.Shutdown()
	}
	return nil
}

func clientID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%s-%d", MODULE, host, os.Getpid())
}
