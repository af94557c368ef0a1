package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
	"github.com/andesalud/hiv-auth/internal/domain/cycle"
	"github.com/andesalud/hiv-auth/pkg/workerpool"
)

type fakeRegistry struct {
	hiv         map[string]bool
	ingredients map[string]string
}

func (f *fakeRegistry) IsHIVMedication(_ context.Context, troquel string) (bool, error) {
	return f.hiv[troquel], nil
}

func (f *fakeRegistry) ActiveIngredient(_ context.Context, troquel string) (string, error) {
	return f.ingredients[troquel], nil
}

type fakeHistory struct {
	tickets map[string]*claims.Ticket
	members map[string]*claims.MemberRecord
	events  map[string][]claims.DispensingEvent
	err     error
}

func (f *fakeHistory) FindTicket(_ context.Context, id string) (*claims.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tickets[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	return t, nil
}

func (f *fakeHistory) FindRecipes(_ context.Context, ticketID, socio string) ([]claims.DispensingEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, claims.ErrNotFound
	}
	if !ticketOwnedBy(t, socio) {
		return nil, claims.ErrValidation
	}
	return f.events[socio], nil
}

func (f *fakeHistory) MemberSnapshot(_ context.Context, socio string) (*claims.MemberRecord, []claims.DispensingEvent, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	m, ok := f.members[socio]
	if !ok {
		return nil, nil, claims.ErrNotFound
	}
	return m, f.events[socio], nil
}

func ticketOwnedBy(t *claims.Ticket, socio string) bool {
	return socio != "" && len(t.Socio) >= len(socio) && t.Socio[:len(socio)] == socio
}

type fakeTable struct {
	rules map[string]*claims.SubstitutionRule
}

func (f *fakeTable) Lookup(_ context.Context, troquel string) (*claims.SubstitutionRule, error) {
	r, ok := f.rules[troquel]
	if !ok {
		return nil, claims.ErrNotFound
	}
	return r, nil
}

type fakeAudit struct {
	records []*cycle.VerdictRecord
}

func (f *fakeAudit) RecordVerdict(_ context.Context, rec *cycle.VerdictRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func newTestServer(t *testing.T, withPool bool) (*httptest.Server, *fakeAudit) {
	t.Helper()

	registry := &fakeRegistry{
		hiv:         map[string]bool{"45282": true},
		ingredients: map[string]string{"45282": "DOLUTEGRAVIR", "18001": "LAMIVUDINA"},
	}
	history := &fakeHistory{
		tickets: map[string]*claims.Ticket{
			"6384e27f0d2b8a51c7e9f310": {
				ObjectID:     "6384e27f0d2b8a51c7e9f310",
				Filial:       "1",
				Socio:        "61134592601 - CAROLINA",
				ID:           "6384e27f0d2b8a51c7e9f310",
				FechaEntrada: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			},
		},
		members: map[string]*claims.MemberRecord{
			"61134592601": {Socio: "61134592601", Nombre: "CAROLINA"},
			"62245693702": {Socio: "62245693702", Nombre: "MARTIN"},
		},
		events: map[string][]claims.DispensingEvent{
			"61134592601": {
				{
					TicketID:    "6384e27f0d2b8a51c7e9f310",
					Socio:       "61134592601",
					Troquel:     "45282",
					Monodroga:   "DOLUTEGRAVIR",
					Descripcion: "TIVICAY 50 mg comp.rec.x 30",
					DispensedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	}
	table := &fakeTable{rules: map[string]*claims.SubstitutionRule{
		"18001": {Troquel: "18001", Sustituye: true, CodigoSustituible: "23523"},
		"45282": {Troquel: "45282", Sustituye: false},
	}}

	classifier := cycle.NewClassifier(registry, history, table, nil)
	resolver := cycle.NewResolver(table, nil)
	audit := &fakeAudit{}

	var pool *workerpool.Pool
	if withPool {
		var err error
		pool, err = workerpool.New(workerpool.Config{Workers: 4, QueueSize: 16}, CycleWorker(classifier), nil)
		if err != nil {
			t.Fatalf("worker pool creation failed: %v", err)
		}
		pool.Start()
		t.Cleanup(pool.Stop)
	}

	h := NewClaimsHandler(classifier, resolver, history, audit, pool, nil, nil)

	r := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	h.Register(r, passthrough)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, audit
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d", wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
}

func TestGetFirstTicket(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var ticket claims.Ticket
	getJSON(t, srv.URL+"/GetFristTicket?id=6384e27f0d2b8a51c7e9f310", http.StatusOK, &ticket)

	if ticket.Socio != "61134592601 - CAROLINA" {
		t.Errorf("unexpected socio: %q", ticket.Socio)
	}
}

func TestGetFirstTicketNotFound(t *testing.T) {
	srv, _ := newTestServer(t, false)
	getJSON(t, srv.URL+"/GetFristTicket?id=unknown", http.StatusNotFound, nil)
}

func TestGetFirstTicketMissingID(t *testing.T) {
	srv, _ := newTestServer(t, false)
	getJSON(t, srv.URL+"/GetFristTicket", http.StatusBadRequest, nil)
}

func TestGetTroquel(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var resp TroquelResponse
	getJSON(t, srv.URL+"/GetTroquel?id=6384e27f0d2b8a51c7e9f310&socio=61134592601", http.StatusOK, &resp)

	if len(resp.Code.Coding) != 1 {
		t.Fatalf("expected one coding entry, got %d", len(resp.Code.Coding))
	}
	if resp.Code.Coding[0].Code != "45282" {
		t.Errorf("expected troquel 45282, got %q", resp.Code.Coding[0].Code)
	}
	if resp.Code.Text != "TIVICAY 50 mg comp.rec.x 30" {
		t.Errorf("unexpected text: %q", resp.Code.Text)
	}
}

func TestGetTroquelWrongSocio(t *testing.T) {
	srv, _ := newTestServer(t, false)
	getJSON(t, srv.URL+"/GetTroquel?id=6384e27f0d2b8a51c7e9f310&socio=99999999999", http.StatusBadRequest, nil)
}

func TestCheckHIV(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var resp HIVCheckResponse
	getJSON(t, srv.URL+"/hiv/check?presentacion=45282", http.StatusOK, &resp)
	if !resp.EsHIV {
		t.Error("expected es_hiv true for registered presentacion")
	}

	getJSON(t, srv.URL+"/hiv/check?presentacion=11111", http.StatusOK, &resp)
	if resp.EsHIV {
		t.Error("expected es_hiv false for unregistered presentacion")
	}
}

func TestClassifyCycle(t *testing.T) {
	srv, audit := newTestServer(t, false)

	cases := []struct {
		troquel string
		socio   string
		want    int
	}{
		{"45282", "61134592601", int(cycle.VerdictRenewal)},
		{"18001", "62245693702", int(cycle.VerdictInitiation)},
		{"99999", "00000000000", int(cycle.VerdictIndeterminate)},
	}

	for _, c := range cases {
		var resp CycleResponse
		url := fmt.Sprintf("%s/ciclo?troquel=%s&socio=%s", srv.URL, c.troquel, c.socio)
		getJSON(t, url, http.StatusOK, &resp)
		if resp.Ciclo != c.want {
			t.Errorf("troquel %s socio %s: expected ciclo %d, got %d", c.troquel, c.socio, c.want, resp.Ciclo)
		}
	}

	if len(audit.records) != len(cases) {
		t.Errorf("expected %d audit records, got %d", len(cases), len(audit.records))
	}
}

func TestClassifyCycleMissingParams(t *testing.T) {
	srv, _ := newTestServer(t, false)
	getJSON(t, srv.URL+"/ciclo?troquel=45282", http.StatusBadRequest, nil)
}

func TestClassifyCycleBatch(t *testing.T) {
	srv, _ := newTestServer(t, true)

	body, _ := json.Marshal(BatchCycleRequest{Items: []BatchCycleItem{
		{Troquel: "45282", Socio: "61134592601"},
		{Troquel: "18001", Socio: "62245693702"},
		{Troquel: "99999", Socio: "00000000000"},
	}})

	resp, err := http.Post(srv.URL+"/ciclo/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var out struct {
		Results []BatchCycleResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}

	want := []int{int(cycle.VerdictRenewal), int(cycle.VerdictInitiation), int(cycle.VerdictIndeterminate)}
	for i, res := range out.Results {
		if res.Error != "" {
			t.Errorf("item %d: unexpected error %q", i, res.Error)
			continue
		}
		if res.Ciclo != want[i] {
			t.Errorf("item %d: expected ciclo %d, got %d", i, want[i], res.Ciclo)
		}
	}
}

func TestClassifyCycleBatchValidation(t *testing.T) {
	srv, _ := newTestServer(t, true)

	cases := []string{
		`{}`,
		`{"items":[]}`,
		`{"items":[{"troquel":"45282"}]}`,
		`not json`,
	}
	for _, body := range cases {
		resp, err := http.Post(srv.URL+"/ciclo/batch", "application/json", bytes.NewReader([]byte(body)))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected status 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestClassifyCycleBatchDisabled(t *testing.T) {
	srv, _ := newTestServer(t, false)

	body := []byte(`{"items":[{"troquel":"45282","socio":"61134592601"}]}`)
	resp, err := http.Post(srv.URL+"/ciclo/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", resp.StatusCode)
	}
}

func TestResolveSubstitutionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var outcome cycle.SubstitutionOutcome
	getJSON(t, srv.URL+"/sustitucion?troquel=18001", http.StatusOK, &outcome)
	if !outcome.Sustituible || outcome.Sustituto != "23523" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	getJSON(t, srv.URL+"/sustitucion?troquel=45282", http.StatusOK, &outcome)
	if outcome.Sustituible {
		t.Errorf("expected not substitutable, got %+v", outcome)
	}

	getJSON(t, srv.URL+"/sustitucion?troquel=00000", http.StatusNotFound, nil)
}

func TestIndexListsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, false)

	var out map[string][]string
	getJSON(t, srv.URL+"/", http.StatusOK, &out)
	if len(out["endpoints"]) == 0 {
		t.Error("expected endpoint listing")
	}
}

func TestRetrievalErrorMapsTo500(t *testing.T) {
	history := &fakeHistory{err: fmt.Errorf("query: %w", claims.ErrRetrieval)}
	table := &fakeTable{}
	classifier := cycle.NewClassifier(&fakeRegistry{}, history, table, nil)
	resolver := cycle.NewResolver(table, nil)

	h := NewClaimsHandler(classifier, resolver, history, nil, nil, nil, nil)
	r := chi.NewRouter()
	h.Register(r, func(next http.Handler) http.Handler { return next })

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ciclo?troquel=45282&socio=61134592601")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["error"] != "Error consultando base" {
		t.Errorf("unexpected error body: %q", body["error"])
	}
}
