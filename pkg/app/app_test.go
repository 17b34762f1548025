package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"

	"rfnode/pkg/acurite"
	"rfnode/pkg/app/config"
	"rfnode/pkg/mqtt"
	"rfnode/pkg/port"
	"rfnode/pkg/radio"
)

type testApp struct {
	*App
	t     *testing.T
	clock *port.ManualClock
}

func newTestApp(t *testing.T, dedup time.Duration) *testApp {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Radio.DeviceType = radio.DeviceAcurite
	cfg.Radio.Dedup = dedup
	cfg.MQTT.Topic = "home/rf/"

	clock := port.NewManualClock(0)
	a := &App{
		config: cfg,
		web:    fiber.New(),
		mqtt:   mqtt.New(),
		clock:  clock,
		rx:     radio.New(256, clock),
		seen:   cache.New(dedup, time.Minute),
		cmd:    make(chan bool, 1),
	}
	if err := a.rx.SelectDeviceType(radio.DeviceAcurite); err != nil {
		t.Fatal(err)
	}
	a.initDefaultRoutes()

	return &testApp{App: a, t: t, clock: clock}
}

// transmit sends msg once as edges to the receiver.
func (a *testApp) transmit(msg []byte) {
	p := a.rx.Profile()

	var w []uint16
	for i := 0; i < 9; i++ {
		w = append(w, p.SyncWidth)
	}
	for _, b := range msg {
		for bit := 7; bit >= 0; bit-- {
			if b>>bit&1 == 1 {
				w = append(w, p.LongWidth, p.ShortWidth)
			} else {
				w = append(w, p.ShortWidth, p.LongWidth)
			}
		}
	}
	w = append(w, p.ShortWidth, 12000)

	for _, d := range w {
		if !a.rx.OnEdgeAt(a.clock.Advance(uint32(d))) {
			a.t.Fatalf("edge rejected")
		}
	}
}

// published returns the messages waiting to be sent to the broker.
func (a *testApp) published() []mqtt.Message {
	var msgs []mqtt.Message
	for {
		select {
		case m := <-a.mqtt.C:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func (a *testApp) get(path string) *http.Response {
	a.t.Helper()

	resp, err := a.web.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		a.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

var reading = acurite.Reading{ID: 0x1A2, Channel: "A", BatteryOK: true, Humidity: 48, Temperature: 22.4}

func TestPoll_PublishesMessageAndReading(t *testing.T) {
	a := newTestApp(t, 0)

	a.transmit(acurite.Encode(reading))
	a.poll(make([]byte, 9))

	msgs := a.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].Topic != "home/rf/message" || msgs[1].Topic != "home/rf/reading" {
		t.Fatalf("topics %q %q", msgs[0].Topic, msgs[1].Topic)
	}

	var m Message
	if err := json.Unmarshal(msgs[0].Payload, &m); err != nil {
		t.Fatal(err)
	}
	if m.Device != "acurite" || m.Size != acurite.Size || len(m.Data) != 2*acurite.Size {
		t.Fatalf("message %+v", m)
	}

	var r acurite.Reading
	if err := json.Unmarshal(msgs[1].Payload, &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != reading.ID || r.Temperature != reading.Temperature || r.Humidity != reading.Humidity {
		t.Fatalf("reading %+v", r)
	}
}

func TestPoll_Dedup(t *testing.T) {
	tests := []struct {
		name  string
		dedup time.Duration
		want  int
	}{
		{"repeats dropped", 2 * time.Second, 1},
		{"dedup disabled", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, tt.dedup)
			buf := make([]byte, 9)

			for i := 0; i < 3; i++ {
				a.transmit(acurite.Encode(reading))
				a.poll(buf)
			}

			n := 0
			for _, m := range a.published() {
				if m.Topic == "home/rf/message" {
					n++
				}
			}
			if n != tt.want {
				t.Fatalf("published %d messages, want %d", n, tt.want)
			}
			if st := a.rx.Stats(); st.Attempts != 3 || st.Errors != 0 {
				t.Fatalf("stats %v", st)
			}
		})
	}
}

func TestPoll_UndecodableReading(t *testing.T) {
	a := newTestApp(t, 0)

	b := acurite.Encode(reading)
	b[6]++
	a.transmit(b)
	a.poll(make([]byte, 9))

	msgs := a.published()
	if len(msgs) != 1 || msgs[0].Topic != "home/rf/message" {
		t.Fatalf("published %v", msgs)
	}
	if resp := a.get("/reading"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("reading status %d", resp.StatusCode)
	}
}

func TestWebServices(t *testing.T) {
	a := newTestApp(t, 0)

	if resp := a.get("/message"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("message before first poll: status %d", resp.StatusCode)
	}

	a.transmit(acurite.Encode(reading))
	a.poll(make([]byte, 9))
	a.published()

	resp := a.get("/reading")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reading status %d", resp.StatusCode)
	}
	var r acurite.Reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatal(err)
	}
	if r.Channel != "A" || r.Temperature != 22.4 {
		t.Fatalf("reading %+v", r)
	}

	resp = a.get("/stats")
	var st struct {
		Attempts uint64 `json:"attempts"`
		State    string `json:"state"`
		Enabled  bool   `json:"enabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Attempts != 1 || st.State != radio.SyncSeek.String() || !st.Enabled {
		t.Fatalf("stats %+v", st)
	}

	resp = a.get("/version")
	var v struct {
		About  string `json:"about"`
		Device string `json:"device"`
		Radio  string `json:"radio"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.About != "rfnode V1.0.10" || v.Device != "acurite" || v.Radio != "RXB6 433 MHz" {
		t.Fatalf("version %+v", v)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		err     error
	}{
		{`{"state":"on"}`, true, nil},
		{`{"state":"OFF"}`, false, nil},
		{`{"state":"toggle"}`, false, ErrInvalidCommand},
		{`on`, false, ErrInvalidCommand},
	}

	for _, tt := range tests {
		got, err := parseCommand([]byte(tt.payload))
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Fatalf("%s: got %v, %v want %v, %v", tt.payload, got, err, tt.want, tt.err)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	a := newTestApp(t, 0)

	a.handleCommand("home/rf/cmd", []byte(`{"state":"off"}`))
	// a second command is dropped while the first is pending
	a.handleCommand("home/rf/cmd", []byte(`{"state":"on"}`))

	select {
	case on := <-a.cmd:
		if on {
			t.Fatalf("got enable, want disable")
		}
	default:
		t.Fatalf("command not queued")
	}

	a.handleCommand("home/rf/cmd", []byte(`{"state":"toggle"}`))
	select {
	case on := <-a.cmd:
		t.Fatalf("invalid command queued: %v", on)
	default:
	}
}

func TestPoll_MQTTQueueFull(t *testing.T) {
	a := newTestApp(t, 0)

	// nobody services the queue, as with a broker which does not answer
	for len(a.mqtt.C) < cap(a.mqtt.C) {
		a.mqtt.C <- mqtt.Message{Topic: "home/rf/stats"}
	}

	a.transmit(acurite.Encode(reading))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.poll(make([]byte, 9))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("poll blocked on a full mqtt queue")
	}

	// message and reading
	if n := a.mqttDropped.Load(); n != 2 {
		t.Fatalf("dropped %d mqtt messages, want 2", n)
	}
	if st := a.rx.Stats(); st.Attempts != 1 || st.Queued != 0 {
		t.Fatalf("stats %v", st)
	}

	a.published()
	resp := a.get("/stats")
	var st struct {
		MQTTDropped uint64 `json:"mqttDropped"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.MQTTDropped != 2 {
		t.Fatalf("stats report %d dropped", st.MQTTDropped)
	}
}
