// Command fake_gateway serves a stand-in router admin UI with a churning
// set of attached devices, for running netpresence without real hardware.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"netpresence/internal/logger"
)

const (
	sessionCookie = "Cookie"
	devicesPath   = "/html/bbsp/common/GetLanUserDevInfo.asp"
)

type fakeDevice struct {
	MAC      string
	IP       string
	Hostname string
	Online   bool
	Since    time.Time
}

type fakeGateway struct {
	start    time.Time
	username string
	password string
	format   string
	latency  time.Duration
	failRate float64
	churn    float64
	logger   zerolog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	devices  []*fakeDevice
	sessions map[string]struct{}

	logins atomic.Int64
	polls  atomic.Int64
	fails  atomic.Int64
}

func main() {
	log, err := logger.New(logger.Config{Level: getenvDefault("LOG_LEVEL", "info")})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	addr := getenvDefault("FAKE_GW_ADDR", ":18081")
	gw := &fakeGateway{
		start:    time.Now().UTC(),
		username: getenvDefault("FAKE_GW_USERNAME", "admin"),
		password: getenvDefault("FAKE_GW_PASSWORD", "admin"),
		format:   getenvDefault("FAKE_GW_FORMAT", "embedded"),
		latency:  time.Duration(getenvIntDefault("FAKE_GW_LATENCY_MS", 0)) * time.Millisecond,
		failRate: getenvFloatDefault("FAKE_GW_FAIL_RATE", 0),
		churn:    getenvFloatDefault("FAKE_GW_CHURN", 0.2),
		logger:   log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions: make(map[string]struct{}),
	}
	gw.seed(getenvIntDefault("FAKE_GW_DEVICES", 8))

	log.Info().Str("addr", addr).Str("format", gw.format).Msg("fake gateway listening")
	if err := http.ListenAndServe(addr, gw.routes()); err != nil {
		log.Fatal().Err(err).Msg("fake gateway stopped")
	}
}

func (g *fakeGateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleLoginPage)
	mux.HandleFunc("/login.cgi", g.handleLogin)
	mux.HandleFunc(devicesPath, g.handleDevices)
	mux.HandleFunc("/api/devices", g.handleDevices)
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	return mux
}

func (g *fakeGateway) seed(n int) {
	names := []string{"alice-laptop", "bob-phone", "carol-pc", "dave-tablet", "erin-laptop", "N/A"}
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		g.devices = append(g.devices, &fakeDevice{
			MAC:      fmt.Sprintf("02:00:5E:10:%02X:%02X", i/256, i%256),
			IP:       fmt.Sprintf("192.168.1.%d", 100+i),
			Hostname: names[i%len(names)],
			Online:   g.rng.Float64() < 0.5,
			Since:    now,
		})
	}
}

func (g *fakeGateway) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeLoginForm(w)
}

func (g *fakeGateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	g.logins.Add(1)
	if r.PostForm.Get("txt_Username") != g.username || r.PostForm.Get("txt_Password") != g.password {
		g.logger.Warn().Str("username", r.PostForm.Get("txt_Username")).Msg("login rejected")
		writeLoginForm(w)
		return
	}
	sid := uuid.NewString()
	g.mu.Lock()
	// The real device admits one session at a time.
	g.sessions = map[string]struct{}{sid: {}}
	g.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sid, Path: "/"})
	_, _ = w.Write([]byte("ok"))
}

func (g *fakeGateway) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		writeLoginForm(w)
		return
	}
	if g.latency > 0 {
		time.Sleep(g.latency)
	}
	g.polls.Add(1)

	g.mu.Lock()
	if g.failRate > 0 && g.rng.Float64() < g.failRate {
		g.mu.Unlock()
		g.fails.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	g.step()
	snapshot := make([]fakeDevice, 0, len(g.devices))
	for _, d := range g.devices {
		snapshot = append(snapshot, *d)
	}
	g.mu.Unlock()

	if g.format == "json" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSONDevices(w, snapshot)
		return
	}
	writeEmbeddedDevices(w, snapshot)
}

// step flips each device with probability churn.
func (g *fakeGateway) step() {
	now := time.Now().UTC()
	for _, d := range g.devices {
		if g.rng.Float64() < g.churn {
			d.Online = !d.Online
			d.Since = now
			if d.Online {
				d.IP = fmt.Sprintf("192.168.1.%d", 100+g.rng.Intn(100))
			}
		}
	}
}

func (g *fakeGateway) authorized(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sessions[cookie.Value]
	return ok
}

func (g *fakeGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (g *fakeGateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	online := 0
	for _, d := range g.devices {
		if d.Online {
			online++
		}
	}
	total := len(g.devices)
	g.mu.Unlock()
	writeJSON(w, map[string]any{
		"started_at": g.start.Format(time.RFC3339),
		"logins":     g.logins.Load(),
		"polls":      g.polls.Load(),
		"failures":   g.fails.Load(),
		"devices":    total,
		"online":     online,
	})
}

func writeLoginForm(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<html><body><form action="/login.cgi" method="post">` +
		`<input id="txt_Username" name="txt_Username"><input id="txt_Password" name="txt_Password" type="password">` +
		`</form></body></html>`))
}

func writeEmbeddedDevices(w http.ResponseWriter, devices []fakeDevice) {
	var b strings.Builder
	b.WriteString("var UserDevinfo = new Array(")
	for i, d := range devices {
		status := "Offline"
		if d.Online {
			status = "Online"
		}
		fmt.Fprintf(&b, "new USERDeviceNew(\"InternetGatewayDevice.LANDevice.1.X_HW_UserDev.%d\",\"%s\",\"%s\",\"\",\"\",\"PC\",\"%s\",\"WIFI\",\"%d\",\"\",\"%s\"),\n",
			i+1, hexEscape(d.IP), hexEscape(strings.ToLower(d.MAC)), status, int(time.Since(d.Since).Seconds()), hexEscape(d.Hostname))
	}
	b.WriteString("null);")
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(b.String()))
}

func writeJSONDevices(w http.ResponseWriter, devices []fakeDevice) {
	payload := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		status := "offline"
		if d.Online {
			status = "online"
		}
		payload = append(payload, map[string]any{
			"MACAddress":     d.MAC,
			"IPAddress":      d.IP,
			"HostName":       d.Hostname,
			"Active":         d.Online,
			"WirelessActive": true,
			"Status":         status,
		})
	}
	writeJSON(w, map[string]any{"devices": payload})
}

func hexEscape(value string) string {
	return strings.NewReplacer(".", `\x2e`, ":", `\x3a`, "-", `\x2d`).Replace(value)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
