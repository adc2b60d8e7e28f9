package brain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
)

func TestSubmitSimulation(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/simulations" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req domain.SimulationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Type != "REGULAR" {
			t.Errorf("expected type REGULAR, got %s", req.Type)
		}
		if req.Regular != "ts_mean(close, 10)" {
			t.Errorf("unexpected expression %q", req.Regular)
		}
		if req.Settings.Region != "USA" {
			t.Errorf("expected default region USA, got %s", req.Settings.Region)
		}
		w.Header().Set("Location", server.URL+"/simulations/sim-42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	job, err := client.SubmitSimulation(context.Background(), "ts_mean(close, 10)", domain.DefaultSettings())
	if err != nil {
		t.Fatalf("SubmitSimulation: %v", err)
	}
	if job.Handle != "/simulations/sim-42" {
		t.Errorf("expected relative handle, got %q", job.Handle)
	}
	if job.Status != domain.JobPending {
		t.Errorf("expected PENDING, got %s", job.Status)
	}
}

func TestSubmitSimulationRejectsInvalidExpressionLocally(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.SubmitSimulation(context.Background(), "close(", domain.DefaultSettings())
	var vErr *expr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *expr.ValidationError, got %v", err)
	}
	if requests.Load() != 0 {
		t.Errorf("invalid expression must not reach the server, saw %d requests", requests.Load())
	}
}

func TestSubmitSimulationRemoteRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"unknown field"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.SubmitSimulation(context.Background(), "rank(volume)", domain.DefaultSettings())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 in error, got %d", reqErr.StatusCode)
	}
}

func TestSimulateAlpha(t *testing.T) {
	var polls atomic.Int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/simulations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", server.URL+"/simulations/sim-9")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/simulations/sim-9", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"sim-9","status":"COMPLETE","alpha":"XYZ"}`))
	})
	mux.HandleFunc("/alphas/XYZ", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"XYZ","status":"UNSUBMITTED","grade":"GOOD",
			"regular":{"code":"rank(volume)"},
			"is":{"sharpe":1.4,"fitness":1.1,"turnover":0.2}}`))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := testClient(t, server.URL)
	// Shrink the poll interval for the test.
	orig := SimulationProfile
	SimulationProfile = fastProfile
	defer func() { SimulationProfile = orig }()

	result, err := client.SimulateAlpha(context.Background(), "rank(volume)", domain.DefaultSettings())
	if err != nil {
		t.Fatalf("SimulateAlpha: %v", err)
	}
	if result.Job.AlphaID != "XYZ" {
		t.Errorf("expected alpha id XYZ, got %q", result.Job.AlphaID)
	}
	if result.Details == nil {
		t.Fatal("expected alpha details")
	}
	if result.Details.InSample == nil {
		t.Fatal("expected in-sample metrics")
	}
	if result.Details.InSample.Sharpe != 1.4 {
		t.Errorf("expected sharpe 1.4, got %f", result.Details.InSample.Sharpe)
	}
}

func TestGetDataFieldsPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		w.WriteHeader(http.StatusOK)
		switch offset {
		case "0":
			w.Write([]byte(`{"count":51,"results":[` + repeatField(50) + `]}`))
		case "50":
			w.Write([]byte(`{"count":51,"results":[{"id":"last","description":"d","type":"MATRIX"}]}`))
		default:
			t.Errorf("unexpected offset %s", offset)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	fields, err := client.GetDataFields(context.Background(), DataFieldsQuery{
		Dataset:        "fundamental6",
		Region:         "USA",
		Universe:       "TOP3000",
		Delay:          1,
		InstrumentType: "EQUITY",
	})
	if err != nil {
		t.Fatalf("GetDataFields: %v", err)
	}
	if len(fields) != 51 {
		t.Errorf("expected 51 fields, got %d", len(fields))
	}
	if fields[50].ID != "last" {
		t.Errorf("expected last field from second page, got %q", fields[50].ID)
	}
}

func repeatField(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += `{"id":"f","description":"d","type":"MATRIX"}`
	}
	return out
}

func TestGetOperatorsAcceptsBothShapes(t *testing.T) {
	bodies := []string{
		`[{"name":"rank","category":"Cross Sectional"}]`,
		`{"count":1,"results":[{"name":"rank","category":"Cross Sectional"}]}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
		}))
		client := testClient(t, server.URL)
		ops, err := client.GetOperators(context.Background())
		server.Close()
		if err != nil {
			t.Fatalf("GetOperators(%s): %v", body, err)
		}
		if len(ops) != 1 || ops[0].Name != "rank" {
			t.Errorf("unexpected operators %+v for body %s", ops, body)
		}
	}
}

func TestSetAlphaProperties(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	name := "momentum-v2"
	desc := "volume-weighted momentum"
	err := client.SetAlphaProperties(context.Background(), "XYZ", AlphaProperties{
		Name:        &name,
		Tags:        []string{"momentum"},
		Description: &desc,
	})
	if err != nil {
		t.Fatalf("SetAlphaProperties: %v", err)
	}
	if got["name"] != "momentum-v2" {
		t.Errorf("expected name in body, got %v", got["name"])
	}
	if _, present := got["color"]; present {
		t.Error("nil color must not be sent")
	}
	regular, ok := got["regular"].(map[string]any)
	if !ok || regular["description"] != "volume-weighted momentum" {
		t.Errorf("description must nest under regular, got %v", got["regular"])
	}
}

func TestSetAlphaPropertiesNoFieldsIsNoop(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.SetAlphaProperties(context.Background(), "XYZ", AlphaProperties{}); err != nil {
		t.Fatalf("SetAlphaProperties: %v", err)
	}
	if requests.Load() != 0 {
		t.Errorf("empty update must not reach the server, saw %d requests", requests.Load())
	}
}

func TestSubmitAlpha(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alphas/XYZ/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		if gets.Add(1) == 1 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"is":{"checks":[{"name":"LOW_SHARPE","result":"PASS"}]}}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	orig := SubmissionProfile
	SubmissionProfile = fastProfile
	defer func() { SubmissionProfile = orig }()

	raw, err := client.SubmitAlpha(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("SubmitAlpha: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected terminal check payload")
	}
	if gets.Load() != 2 {
		t.Errorf("expected 2 poll requests, got %d", gets.Load())
	}
}

func TestSubmitAlphaRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"already submitted"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.SubmitAlpha(context.Background(), "XYZ")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
}
