package app

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"github.com/womat/debug"

	"rfnode/pkg/acurite"
	"rfnode/pkg/mqtt"
	"rfnode/pkg/radio"
)

// sub topics below the configured mqtt topic
const (
	topicMessage = "message"
	topicReading = "reading"
	topicStats   = "stats"
	topicStatus  = "status"
	topicCmd     = "cmd"

	statusOnline  = "online"
	statusOffline = "offline"
)

var ErrInvalidCommand = errors.New("invalid command")

// Message is a decoded radio message as published to mqtt.
type Message struct {
	Time   time.Time `json:"time"`
	Device string    `json:"device"`
	Size   int       `json:"size"`
	Data   string    `json:"data"`
}

// command is the payload of the command topic, e.g. {"state":"off"}
type command struct {
	State string `json:"state"`
}

// receive services the receiver every poll interval until the app is closed.
// It is the only goroutine which services the receiver.
func (app *App) receive() {
	defer app.wg.Done()

	poll := time.NewTicker(app.config.Radio.Poll)
	defer poll.Stop()

	var statsC <-chan time.Time
	if app.config.MQTT.Interval > 0 {
		t := time.NewTicker(app.config.MQTT.Interval)
		defer t.Stop()
		statsC = t.C
	}

	buf := make([]byte, app.rx.Profile().MaxMsgBytes)

	for {
		select {
		case <-app.quit:
			return
		case on := <-app.cmd:
			debug.InfoLog.Printf("receiver enabled: %v", on)
			app.rx.Enable(on)
		case <-poll.C:
			app.poll(buf)
		case <-statsC:
			app.last.Lock()
			st := app.last.stats
			app.last.Unlock()
			app.sendMQTT(topicStats, statsMessage(st), false)
		}
	}
}

// poll services the receiver and handles every message waiting.
func (app *App) poll(buf []byte) {
	app.rx.Service()

	for {
		n, err := app.rx.Read(buf)
		if err != nil {
			break
		}
		app.handleMessage(buf[:n])
	}

	st := app.rx.Stats()
	app.last.Lock()
	app.last.stats = st
	app.last.enabled = app.rx.Enabled()
	app.last.Unlock()
}

// handleMessage publishes a message unless it repeats a message of the dedup interval.
func (app *App) handleMessage(b []byte) {
	data := hex.EncodeToString(b)

	if app.config.Radio.Dedup > 0 {
		if err := app.seen.Add(data, struct{}{}, cache.DefaultExpiration); err != nil {
			debug.TraceLog.Printf("repeated message %s", data)
			return
		}
	}

	msg := Message{
		Time:   time.Now(),
		Device: app.rx.Device().String(),
		Size:   len(b),
		Data:   data,
	}
	debug.DebugLog.Printf("message %s", data)
	app.sendMQTT(topicMessage, msg, false)

	var reading *acurite.Reading
	switch app.rx.Device() {
	case radio.DeviceAcurite, radio.DeviceDefault:
		r, err := acurite.Decode(b)
		if err != nil {
			debug.DebugLog.Printf("message %s: %v", data, err)
			break
		}
		reading = &r
		app.sendMQTT(topicReading, r, false)
	}

	app.last.Lock()
	app.last.message = &msg
	if reading != nil {
		app.last.reading = reading
	}
	app.last.Unlock()
}

// handleCommand is called by the mqtt client for every message on the command topic.
func (app *App) handleCommand(topic string, payload []byte) {
	on, err := parseCommand(payload)
	if err != nil {
		debug.ErrorLog.Printf("topic %s: %v", topic, err)
		return
	}

	select {
	case app.cmd <- on:
	default:
		debug.ErrorLog.Printf("topic %s: previous command pending", topic)
	}
}

func parseCommand(payload []byte) (bool, error) {
	var c command
	if err := json.Unmarshal(payload, &c); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch strings.ToLower(c.State) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: state %q", ErrInvalidCommand, c.State)
	}
}

// topic returns the full topic of a sub topic.
func (app *App) topic(sub string) string {
	return strings.TrimSuffix(app.config.MQTT.Topic, "/") + "/" + sub
}

// sendMQTT send message struct to the mqtt broker.
// Strings are sent as they are, anything else as json.
// The message is dropped if the mqtt queue is full.
func (app *App) sendMQTT(sub string, message interface{}, retained bool) {
	debug.TraceLog.Printf("prepare mqtt message %v %v", sub, message)

	var b []byte
	switch m := message.(type) {
	case string:
		b = []byte(m)
	default:
		var err error
		if b, err = json.Marshal(m); err != nil {
			debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
			return
		}
	}

	m := mqtt.Message{
		Qos:      0,
		Retained: retained,
		Topic:    app.topic(sub),
		Payload:  b,
	}

	// the poll loop must not wait for the broker
	select {
	case app.mqtt.C <- m:
	default:
		n := app.mqttDropped.Add(1)
		debug.ErrorLog.Printf("mqtt queue full, message to %v dropped (%d dropped)", m.Topic, n)
	}
}

// statsMessage is the json representation of the receiver statistics.
func statsMessage(st radio.Stats) fiber.Map {
	return fiber.Map{
		"attempts":  st.Attempts,
		"errors":    st.Errors,
		"errorRate": st.ErrorRate(),
		"overruns":  st.Overruns,
		"oversized": st.Oversized,
		"dropped":   st.Dropped,
		"syncMin":   st.SyncMin,
		"syncMax":   st.SyncMax,
		"state":     st.State,
		"queued":    st.Queued,
		"ready":     st.Ready,
	}
}
