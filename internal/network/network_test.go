package network

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parkpilot/server/internal/domain/parking"
	"github.com/parkpilot/server/internal/engine"
	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/insight"
	"github.com/parkpilot/server/internal/lot"
	"github.com/parkpilot/server/internal/occupancy"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/optimization"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type staticInsight struct{}

func (staticInsight) Narrate(ctx context.Context) insight.Insight {
	return insight.Insight{Text: "Lot is quiet.", Source: insight.SourceFallback}
}

type fakeLotReader struct {
	snap *engine.LotSnapshot
}

func (f fakeLotReader) GetLot(ctx context.Context, lotID string) (*engine.LotSnapshot, error) {
	if f.snap == nil {
		return nil, context.Canceled
	}
	return f.snap, nil
}

type testServer struct {
	engine *engine.Engine
	hub    *Hub
	router *gin.Engine
}

func newTestServer(t *testing.T, spots []parking.Spot) *testServer {
	t.Helper()
	l, err := lot.New("test", spots)
	if err != nil {
		t.Fatalf("lot: %v", err)
	}
	log := logger.Discard()
	v := parking.NewVehicle("car-1", 50, 50, 0)
	eng := engine.NewEngine(l, v, occupancy.NewClassifier(occupancy.DefaultThresholds()), events.NewEventLog(), log, engine.DefaultOptions())

	tuning := optimization.DefaultConfig()
	hub := NewHub(eng, tuning, log)
	eng.AddLotObserver(hub)
	eng.AddVehicleObserver(hub)
	eng.AddGuidanceObserver(hub)

	api := NewAPI(eng, staticInsight{}, fakeLotReader{}, tuning.ClassifyQueue, 1<<20, log)
	router := NewRouter(RouterConfig{
		BasePath:    "/api/v1",
		CORSOrigins: []string{"*"},
		JWTSecret:   testSecret,
		API:         api,
		Activity:    NewActivityHandler("test", eng.EventLog(), nil, log),
		Hub:         hub,
		Logger:      log,
	})
	return &testServer{engine: eng, hub: hub, router: router}
}

func defaultSpots() []parking.Spot {
	return []parking.Spot{
		{ID: "A1", Category: parking.CategoryStandard, X: 20, Y: 20, Lane: "A"},
		{ID: "A2", Category: parking.CategoryEV, X: 40, Y: 20, Lane: "A"},
	}
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueAdminToken(testSecret, "parkpilot", "ops", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "lot.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestGetLotAndSpot(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())

	// Act
	w := s.do(t, http.MethodGet, "/api/v1/lot", "", "")

	// Assert
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap engine.LotSnapshot
	decode(t, w, &snap)
	if len(snap.Spots) != 2 || snap.Counts.Available != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/lot/spots/A2", "", ""); w.Code != http.StatusOK {
		t.Errorf("spot A2 status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/lot/spots/Z9", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing spot status = %d, want 404", w.Code)
	}
}

func TestSetTargetMapsErrors(t *testing.T) {
	// Setup
	spots := defaultSpots()
	spots[1].Status = parking.StatusOccupied
	s := newTestServer(t, spots)

	cases := []struct {
		body string
		want int
	}{
		{`{"spot_id":"A1"}`, http.StatusOK},
		{`{"spot_id":"A2"}`, http.StatusConflict},
		{`{"spot_id":"Z9"}`, http.StatusNotFound},
		{`{}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		// Act
		w := s.do(t, http.MethodPost, "/api/v1/vehicle/target", c.body, "")

		// Assert
		if w.Code != c.want {
			t.Errorf("POST target %s = %d, want %d", c.body, w.Code, c.want)
		}
	}

	if got := s.engine.Vehicle().Vehicle.TargetID; got != "A1" {
		t.Errorf("target = %q, want A1", got)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/vehicle/target", "", ""); w.Code != http.StatusOK {
		t.Errorf("DELETE target = %d", w.Code)
	}
	if got := s.engine.Vehicle().Vehicle.TargetID; got != "" {
		t.Errorf("target after clear = %q", got)
	}
}

func TestFindNearestOutcomes(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())

	// Act
	w := s.do(t, http.MethodPost, "/api/v1/vehicle/nearest", `{"category":"ev"}`, "")

	// Assert
	var res NearestResponse
	decode(t, w, &res)
	if w.Code != http.StatusOK || !res.Found || res.Spot == nil || res.Spot.ID != "A2" {
		t.Fatalf("nearest ev = %d %+v", w.Code, res)
	}

	w = s.do(t, http.MethodPost, "/api/v1/vehicle/nearest", `{"category":"premium"}`, "")
	res = NearestResponse{}
	env := decode(t, w, &res)
	if w.Code != http.StatusOK || res.Found || env.Message != "no spot available" {
		t.Errorf("nearest premium = %d %+v %q", w.Code, res, env.Message)
	}

	w = s.do(t, http.MethodPost, "/api/v1/vehicle/nearest", `{"category":"limo"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown category = %d, want 400", w.Code)
	}
}

func TestSetIntent(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())

	// Act
	w := s.do(t, http.MethodPost, "/api/v1/vehicle/intent", `{"key":"ArrowUp","pressed":true}`, "")

	// Assert
	if w.Code != http.StatusOK || !s.engine.Intents().Forward {
		t.Fatalf("intent = %d, intents %+v", w.Code, s.engine.Intents())
	}
	if w := s.do(t, http.MethodPost, "/api/v1/vehicle/intent", `{"key":"jump","pressed":true}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown key = %d, want 400", w.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())

	// Act / Assert
	if w := s.do(t, http.MethodGet, "/api/v1/admin/stats", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/stats", "", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/stats", "", adminToken(t)); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestReserveAndRelease(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())
	tok := adminToken(t)

	// Act
	w := s.do(t, http.MethodPost, "/api/v1/admin/spots/A2/reserve", `{"hours":2}`, tok)

	// Assert
	var res ReserveResponse
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Spot.Status != parking.StatusReserved || res.Charge <= 0 {
		t.Fatalf("reserve = %d %+v", w.Code, res)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/spots/A2/reserve", `{"hours":1}`, tok); w.Code != http.StatusConflict {
		t.Errorf("double reserve = %d, want 409", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/admin/spots/A1/reserve", `{"hours":-1}`, tok); w.Code != http.StatusBadRequest {
		t.Errorf("negative hours = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/admin/spots/A2/reserve", "", tok); w.Code != http.StatusOK {
		t.Errorf("release = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/admin/spots/A2/reserve", "", tok); w.Code != http.StatusConflict {
		t.Errorf("release twice = %d, want 409", w.Code)
	}
	if spot, _ := s.engine.Spot("A2"); spot.Status != parking.StatusAvailable {
		t.Errorf("A2 = %s after release", spot.Status)
	}
}

func TestUploadOccupancy(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())
	tok := adminToken(t)
	body, ctype := multipartBody(t, "image", pngBytes(t, color.Gray{Y: 128}))

	// Act
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/occupancy", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	// Assert
	var report engine.ClassificationReport
	decode(t, w, &report)
	if w.Code != http.StatusOK || !report.Applied || len(report.Occupied) != 0 {
		t.Fatalf("upload = %d %+v", w.Code, report)
	}
}

func TestUploadOccupancyRejectsGarbage(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())
	tok := adminToken(t)
	body, ctype := multipartBody(t, "image", []byte("definitely not an image"))

	// Act
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/occupancy", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	// Assert
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("garbage upload = %d, want 422", w.Code)
	}
	if got := s.engine.Snapshot().Counts.Available; got != 2 {
		t.Errorf("available = %d after failed decode", got)
	}

	w = s.do(t, http.MethodPost, "/api/v1/admin/occupancy", "", tok)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing image = %d, want 400", w.Code)
	}
}

func TestInsightAndCachedLot(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())
	tok := adminToken(t)

	// Act
	w := s.do(t, http.MethodGet, "/api/v1/admin/insight", "", tok)

	// Assert
	var in insight.Insight
	decode(t, w, &in)
	if w.Code != http.StatusOK || in.Text != "Lot is quiet." {
		t.Errorf("insight = %d %+v", w.Code, in)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/admin/lot/cached", "", tok); w.Code != http.StatusNotFound {
		t.Errorf("cached lot miss = %d, want 404", w.Code)
	}
}

func TestActivityFilters(t *testing.T) {
	// Setup
	s := newTestServer(t, defaultSpots())
	s.do(t, http.MethodPost, "/api/v1/vehicle/target", `{"spot_id":"A1"}`, "")
	s.do(t, http.MethodDelete, "/api/v1/vehicle/target", "", "")
	s.do(t, http.MethodPost, "/api/v1/vehicle/target", `{"spot_id":"A2"}`, "")

	// Act
	w := s.do(t, http.MethodGet, "/api/v1/activity?type=TARGET_ASSIGNED&limit=1", "", "")

	// Assert
	var res ActivityResponse
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Source != "memory" || res.TotalEvents != 1 {
		t.Fatalf("activity = %d %+v", w.Code, res)
	}
	if res.Events[0].TargetID != "A2" || res.Events[0].Summary == "" {
		t.Errorf("newest assignment = %+v", res.Events[0])
	}

	if w := s.do(t, http.MethodGet, "/api/v1/activity?limit=zero", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, defaultSpots())
	if w := s.do(t, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}
}
