package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"freightplan/internal/config"
	"freightplan/internal/model"
	"freightplan/internal/opt"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

const cheapLaneBody = `{
 "name": "two by two",
 "supply": [{"name":"North","location":{"lat":1,"lng":1},"available":100},{"name":"South","location":{"lat":2,"lng":2},"available":50}],
 "demand": [{"name":"A","location":{"lat":1.5,"lng":1},"required":80},{"name":"B","location":{"lat":2.5,"lng":2},"required":70}],
 "drivers": [{"name":"d1","maxHours":10,"maxLoad":200}],
 "cost": [[1,5],[4,2]],
 "travelTimes": [[1,1],[1,1]]
}`

func postAllocation(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/allocations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	s.AllocationsHandler(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestAllocationCreateGetList(t *testing.T) {
	s := newTestServer(t)
	rr := postAllocation(t, s, cheapLaneBody)
	if rr.Code != 200 {
		t.Fatalf("create: got %d %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != string(opt.StatusOptimal) || run.Objective == nil || *run.Objective < 279.999 || *run.Objective > 280.001 {
		t.Fatalf("unexpected run: status=%s objective=%v", run.Status, run.Objective)
	}
	if run.TenantID != "t_test" || run.ID == "" {
		t.Fatalf("run identity: %+v", run)
	}

	for _, suffix := range []string{"", "/report", "/geojson", "/xlsx"} {
		rr = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/allocations/"+run.ID+suffix, nil)
		req.Header.Set("X-Tenant-Id", "t_test")
		s.AllocationByIDHandler(rr, req)
		if rr.Code != 200 {
			t.Fatalf("GET %s: got %d", suffix, rr.Code)
		}
		if suffix == "/report" && !strings.Contains(rr.Body.String(), "Total Cost: ") {
			t.Fatalf("report:\n%s", rr.Body.String())
		}
		if suffix == "/geojson" && rr.Header().Get("Content-Type") != "application/geo+json" {
			t.Fatalf("geojson content type %q", rr.Header().Get("Content-Type"))
		}
	}

	// other tenants cannot see the run
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/allocations/"+run.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_other")
	s.AllocationByIDHandler(rr, req)
	if rr.Code != 404 {
		t.Fatalf("cross-tenant get: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/allocations?status=Optimal&limit=5", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.AllocationsHandler(rr, req)
	var list struct {
		Items []model.RunSummary `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list.Items) != 1 || list.Items[0].Allocations == 0 {
		t.Fatalf("list: %s (%v)", rr.Body.String(), err)
	}

	st, ok := opt.GetStats("t_test")
	if !ok || st.Runs == 0 {
		t.Fatalf("solver stats not recorded: %+v", st)
	}
}

func TestAllocationInfeasibleIsOK(t *testing.T) {
	s := newTestServer(t)
	body := strings.Replace(cheapLaneBody, `"available":50`, `"available":10`, 1)
	rr := postAllocation(t, s, body)
	if rr.Code != 200 {
		t.Fatalf("infeasible run should answer 200, got %d", rr.Code)
	}
	var run model.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.Status != string(opt.StatusInfeasible) || run.Objective != nil || len(run.Result.Diagnostics) == 0 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestAllocationInputErrors(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"shape":      strings.Replace(cheapLaneBody, `[[1,5],[4,2]]`, `[[1,5]]`, 1),
		"negative":   strings.Replace(cheapLaneBody, `"available":100`, `"available":-1`, 1),
		"missing tt": strings.Replace(cheapLaneBody, `[[1,1],[1,1]]`, `[[1,null],[1,1]]`, 1),
		"bad policy": strings.Replace(cheapLaneBody, `"name": "two by two",`, `"options":{"missingTravelTime":"guess"},`, 1),
	}
	for name, body := range cases {
		rr := postAllocation(t, s, body)
		if rr.Code != 400 {
			t.Fatalf("%s: got %d %s", name, rr.Code, rr.Body.String())
		}
		var p Problem
		if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || len(p.Issues) == 0 {
			t.Fatalf("%s: problem %s", name, rr.Body.String())
		}
		if name == "missing tt" && (len(p.UnknownLanes) != 1 || p.UnknownLanes[0] != (opt.Lane{Supply: 0, Demand: 1})) {
			t.Fatalf("unknown lanes %+v", p.UnknownLanes)
		}
	}

	// exclude accepts the same unknown lane
	body := strings.Replace(cases["missing tt"], `"name": "two by two",`, `"options":{"missingTravelTime":"exclude"},`, 1)
	if rr := postAllocation(t, s, body); rr.Code != 200 {
		t.Fatalf("exclude: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAllocationFetchTravelTimes(t *testing.T) {
	s := newTestServer(t)
	body := strings.Replace(cheapLaneBody, `"travelTimes": [[1,1],[1,1]]`, `"options":{"fetchTravelTimes":true}`, 1)
	rr := postAllocation(t, s, body)
	if rr.Code != 200 {
		t.Fatalf("fetch: got %d %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if len(run.Problem.TravelTimes) != 2 || !run.Problem.TravelTimes[0][0].Known {
		t.Fatalf("travel times not filled: %+v", run.Problem.TravelTimes)
	}
}

func TestAllocationForbiddenForDriver(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/allocations", strings.NewReader(cheapLaneBody))
	req.Header.Set("X-Role", "driver")
	s.AllocationsHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("driver post: got %d", rr.Code)
	}
}

func TestAllocationUpload(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	files := map[string]string{
		"supply":  "Location,Longitude,Latitude,Supply\nNorth,1,1,100\nSouth,2,2,50\n",
		"demand":  "Location,Longitude,Latitude,Demand\nA,1,1.5,80\nB,2,2.5,70\n",
		"drivers": "Name,Working Hours,Max Load (units)\nd1,10,200\n",
		"cost":    "supply,A,B\nNorth,1,5\nSouth,4,2\n",
		"travel":  "supply,A,B\nNorth,1,1\nSouth,1,1\n",
	}
	for part, content := range files {
		fw, err := mw.CreateFormFile(part, part+".csv")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.WriteField("duals", "none")
	_ = mw.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/allocations/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.AllocationByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("upload: got %d %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.Status != string(opt.StatusOptimal) || run.Result.DualSource != "none" {
		t.Fatalf("upload run: status=%s dualSource=%q", run.Status, run.Result.DualSource)
	}
}

func TestTravelTimes(t *testing.T) {
	s := newTestServer(t)
	body := `{"supply":[{"location":{"lat":0,"lng":0},"available":1}],"demand":[{"location":{"lat":0,"lng":1},"required":1}]}`
	rr := httptest.NewRecorder()
	s.TravelTimesHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/travel-times", strings.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("travel-times: got %d %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Provider    string             `json:"provider"`
		TravelTimes [][]opt.TravelTime `json:"travelTimes"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	// one degree of longitude at the equator is about 111 km, under two hours at 60 km/h
	if out.Provider != "haversine" || len(out.TravelTimes) != 1 || out.TravelTimes[0][0].Hours < 1.8 || out.TravelTimes[0][0].Hours > 1.9 {
		t.Fatalf("unexpected matrix: %+v", out)
	}
}

func TestOptimizerConfig(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/optimizer/config", strings.NewReader(`{"config":{"duals":"sometimes"}}`))
	s.AdminOptimizerConfigHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("invalid config accepted: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/admin/optimizer/config", strings.NewReader(`{"config":{"duals":"none","maxNodes":50}}`))
	s.AdminOptimizerConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("save config: %d %s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	s.OptimizerConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/optimizer/config", nil))
	var out struct {
		Defaults map[string]any `json:"defaults"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Defaults["duals"] != "none" || out.Defaults["missingTravelTime"] != "reject" {
		t.Fatalf("merged config: %+v", out.Defaults)
	}
	o, err := s.solverOptions(req.Context(), "t_demo", model.AllocationOptions{MaxNodes: 7})
	if err != nil || string(o.Duals) != "none" || o.MaxNodes != 7 {
		t.Fatalf("layered options: %+v %v", o, err)
	}
}

func TestSubscriptionsAndEvents(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", strings.NewReader(`{"url":"http://example.test/hook","events":["allocation.completed"]}`))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 201 {
		t.Fatalf("create subscription: %d %s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/subscriptions", strings.NewReader(`{"url":"http://example.test/hook","events":["route.planned"]}`))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("unknown event accepted: %d", rr.Code)
	}

	ch := s.Broker.Subscribe("t_demo")
	defer s.Broker.Unsubscribe("t_demo", ch)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/allocations", strings.NewReader(cheapLaneBody))
	s.AllocationsHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("create: %d", rr.Code)
	}
	var types []string
	timeout := time.After(time.Second)
	for len(types) < 2 {
		select {
		case evt := <-ch:
			types = append(types, evt.Type)
		case <-timeout:
			t.Fatalf("events received: %v", types)
		}
	}
	if types[0] != model.EventAllocationStarted || types[1] != model.EventAllocationCompleted {
		t.Fatalf("event order %v", types)
	}

	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil))
	var deliveries struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &deliveries)
	if len(deliveries.Items) != 1 || deliveries.Items[0]["eventType"] != model.EventAllocationCompleted {
		t.Fatalf("deliveries: %s", rr.Body.String())
	}
}

func TestAdminOnly(t *testing.T) {
	s := newTestServer(t)
	for path, h := range map[string]http.HandlerFunc{
		"/v1/admin/solver-stats":       s.SolverStatsHandler,
		"/v1/admin/webhook-deliveries": s.WebhookDeliveriesHandler,
		"/v1/admin/webhook-dlq":        s.WebhookDLQHandler,
		"/v1/subscriptions":            s.SubscriptionsHandler,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Role", "dispatcher")
		h(rr, req)
		if rr.Code != 403 {
			t.Fatalf("%s as dispatcher: got %d", path, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/webhook-dlq/nope/requeue", nil)
	s.WebhookDLQHandler(rr, req)
	if rr.Code != 404 {
		t.Fatalf("requeue missing: got %d", rr.Code)
	}
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.EventsStreamHandler))
	defer srv.Close()
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"?types=allocation.completed", nil)
	req.Header.Set("X-Tenant-Id", "t_sse")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	// the heartbeat proves the handler subscribed before publishing
	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "heartbeat") {
		t.Fatalf("first frame %q", buf[:n])
	}
	s.Broker.Publish("t_sse", SSEEvent{Type: "allocation.started", Data: map[string]any{"id": "skip"}})
	s.Broker.Publish("t_sse", SSEEvent{Type: "allocation.completed", Data: map[string]any{"id": "r1"}})
	n, _ = resp.Body.Read(buf)
	got := string(buf[:n])
	if !strings.Contains(got, "event: allocation.completed") || strings.Contains(got, "skip") {
		t.Fatalf("frame %q", got)
	}
}
