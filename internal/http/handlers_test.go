package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movieweb/internal/catalog"
	"github.com/Clark-Hu/movieweb/internal/config"
	"github.com/Clark-Hu/movieweb/internal/discovery"
	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/pgtest"
	"github.com/Clark-Hu/movieweb/internal/repository"
	"github.com/Clark-Hu/movieweb/internal/suggest"
)

// fakeMetadata serves bundles keyed by external id and lower-cased title.
type fakeMetadata struct {
	bundles map[string]domain.MetadataBundle
}

func (f fakeMetadata) Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error) {
	if b, ok := f.bundles[strings.ToLower(title)]; ok {
		return &b, nil
	}
	return nil, fmt.Errorf("metadata: %w", domain.ErrNotFound)
}

func (f fakeMetadata) LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error) {
	if b, ok := f.bundles[externalID]; ok {
		return &b, nil
	}
	return nil, fmt.Errorf("metadata: %w", domain.ErrNotFound)
}

// scriptedProvider replies with a fixed text and remembers the last prompt.
type scriptedProvider struct {
	mu     sync.Mutex
	reply  string
	err    error
	prompt string
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts suggest.GenerateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = prompt
	return p.reply, p.err
}

func (p *scriptedProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

var inception = domain.MetadataBundle{
	ExternalID: "tt1375666",
	Title:      "Inception",
	Year:       "2010",
	Rating:     "8.8",
	Votes:      "2,400,000",
	Director:   "Christopher Nolan",
	Genre:      "Action, Sci-Fi",
}

type testServer struct {
	srv      *Server
	provider *scriptedProvider
}

func buildTestServer(tb testing.TB) *testServer {
	tb.Helper()
	cfg := config.Config{
		Port:             "0",
		AuthToken:        "secret",
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
	}

	md := fakeMetadata{bundles: map[string]domain.MetadataBundle{
		inception.ExternalID:             inception,
		strings.ToLower(inception.Title): inception,
	}}
	repo := repository.NewWithPool(pgtest.NewPool(tb))
	svc := catalog.NewService(repo, md, catalog.Options{LookupTimeout: time.Second, Logger: zerolog.Nop()})

	provider := &scriptedProvider{}
	opts := suggest.Options{Timeout: time.Second, Logger: zerolog.Nop()}
	srv := New(cfg, Deps{
		Catalog:     svc,
		Interpreter: suggest.NewInterpreter(provider, opts),
		Recommender: suggest.NewRecommender(provider, discovery.NewMemoryStore(discovery.DefaultHistoryMax, time.Hour), opts),
		Logger:      zerolog.Nop(),
	})
	return &testServer{srv: srv, provider: provider}
}

func (ts *testServer) do(tb testing.TB, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	tb.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createUser(tb testing.TB, name string) userResponse {
	tb.Helper()
	rec := ts.do(tb, http.MethodPost, "/users", fmt.Sprintf(`{"name":%q}`, name), nil)
	if rec.Code != http.StatusCreated {
		tb.Fatalf("create user status = %d, body %s", rec.Code, rec.Body.String())
	}
	var u userResponse
	decodeBody(tb, rec, &u)
	return u
}

func decodeBody(tb testing.TB, rec *httptest.ResponseRecorder, dst any) {
	tb.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		tb.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func asUser(id string) map[string]string {
	return map[string]string{userHeader: id}
}

func TestHandleAddMovie_Flow(t *testing.T) {
	ts := buildTestServer(t)
	u := ts.createUser(t, "alice")
	path := "/users/" + u.ID + "/movies"

	rec := ts.do(t, http.MethodPost, path, `{"title":"Inception","rating":4.5}`, asUser(u.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var added addMovieResponse
	decodeBody(t, rec, &added)
	if !added.MovieCreated || !added.Changed {
		t.Fatalf("flags = %+v, want created and changed", added)
	}
	if added.Entry.Movie == nil || added.Entry.Movie.ExternalID == nil || *added.Entry.Movie.ExternalID != "tt1375666" {
		t.Fatalf("movie not resolved from metadata: %+v", added.Entry.Movie)
	}
	// The seed (8.8 on a ten-point scale, so 4.5) counts as one vote.
	if added.Entry.Movie.Rating == nil || *added.Entry.Movie.Rating != 4.5 || added.Entry.Movie.VoteCount != 2 {
		t.Fatalf("aggregate = %v/%d, want 4.5/2", added.Entry.Movie.Rating, added.Entry.Movie.VoteCount)
	}

	// Same movie again by external id: no new row, no change.
	rec = ts.do(t, http.MethodPost, path, `{"externalId":"tt1375666","rating":4.5}`, asUser(u.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &added)
	if added.MovieCreated || added.Changed {
		t.Fatalf("repeat flags = %+v, want unchanged", added)
	}

	movieID := added.Entry.MovieID
	rec = ts.do(t, http.MethodPut, path+"/"+movieID+"/rating", `{"rating":null}`, asUser(u.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear rating status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &added)
	if added.Entry.PersonalRating != nil || added.Entry.Movie.VoteCount != 1 || !added.Changed {
		t.Fatalf("after clearing: %+v", added)
	}
	if added.Entry.Movie.Rating == nil || *added.Entry.Movie.Rating != 4.5 {
		t.Fatalf("rating should fall back to the seed, got %v", added.Entry.Movie.Rating)
	}

	rec = ts.do(t, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list userMoviesResponse
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].Movie == nil || list.Items[0].Movie.Title != "Inception" {
		t.Fatalf("list = %+v", list.Items)
	}

	for i := 0; i < 2; i++ {
		rec = ts.do(t, http.MethodDelete, path+"/"+movieID, "", asUser(u.ID))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete #%d status = %d", i, rec.Code)
		}
	}
}

func TestHandleAddMovie_AuthAndValidation(t *testing.T) {
	ts := buildTestServer(t)
	u := ts.createUser(t, "bob")
	other := ts.createUser(t, "carol")
	path := "/users/" + u.ID + "/movies"

	if rec := ts.do(t, http.MethodPost, path, `{"title":"Inception"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d, want 401", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, path, `{"title":"Inception"}`, asUser(other.ID)); rec.Code != http.StatusForbidden {
		t.Fatalf("other user status = %d, want 403", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, path, `{"title":"Inception","rating":7}`, asUser(u.ID)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad rating status = %d, want 422", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, path, `{"title":"Inception","year":3000}`, asUser(u.ID)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("future year status = %d, want 422", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, path, `{"title":"No Such Film"}`, asUser(u.ID)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown movie status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/users/"+u.ID+"/movies", "", nil); !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("failed adds must not write anything: %s", rec.Body.String())
	}
}

func TestHandleImportAndDeleteMovie(t *testing.T) {
	ts := buildTestServer(t)
	body := `{"externalId":"tt1375666"}`

	if rec := ts.do(t, http.MethodPost, "/movies/import", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("import without token status = %d, want 401", rec.Code)
	}
	admin := map[string]string{"Authorization": "Bearer secret"}
	rec := ts.do(t, http.MethodPost, "/movies/import", body, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	var imported importResponse
	decodeBody(t, rec, &imported)
	if rec.Header().Get("Location") != "/movies/"+imported.Movie.ID {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	if rec := ts.do(t, http.MethodPost, "/movies/import", body, admin); rec.Code != http.StatusOK {
		t.Fatalf("second import status = %d, want 200", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/movies/"+imported.Movie.ID, "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"comments":[]`) {
		t.Fatalf("get movie = %d %s", rec.Code, rec.Body.String())
	}

	if rec := ts.do(t, http.MethodDelete, "/movies/"+imported.Movie.ID, "", admin); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/movies/"+imported.Movie.ID, "", admin); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestHandleComments(t *testing.T) {
	ts := buildTestServer(t)
	u := ts.createUser(t, "dana")
	rec := ts.do(t, http.MethodPost, "/users/"+u.ID+"/movies", `{"title":"Inception"}`, asUser(u.ID))
	var added addMovieResponse
	decodeBody(t, rec, &added)
	path := "/movies/" + added.Entry.MovieID + "/comments"

	if rec := ts.do(t, http.MethodPost, path, `{"text":"great"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous comment status = %d, want 401", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, path, `{"text":"great"}`, asUser(u.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment status = %d: %s", rec.Code, rec.Body.String())
	}
	var c commentResponse
	decodeBody(t, rec, &c)

	rec = ts.do(t, http.MethodPost, "/comments/"+c.ID+"/like", "", nil)
	decodeBody(t, rec, &c)
	if rec.Code != http.StatusOK || c.LikesCount != 1 {
		t.Fatalf("like = %d %+v", rec.Code, c)
	}
}

func TestHandleInterpret(t *testing.T) {
	ts := buildTestServer(t)

	ts.provider.reply = suggest.NoTitleSentinel
	rec := ts.do(t, http.MethodPost, "/discover/interpret", `{"query":"something vague"}`, nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "NO_CLEAR_TITLE") {
		t.Fatalf("sentinel reply = %d %s", rec.Code, rec.Body.String())
	}

	ts.provider.reply = `The most probable movie title is: "Inception".`
	rec = ts.do(t, http.MethodPost, "/discover/interpret", `{"query":"dream heist movie"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got suggestionResponse
	decodeBody(t, rec, &got)
	if got.Title != "Inception" || got.Movie != nil {
		t.Fatalf("interpret = %+v, want unmatched Inception", got)
	}

	ts.provider.err = domain.External("suggest", "rate limited", nil)
	rec = ts.do(t, http.MethodPost, "/discover/interpret", `{"query":"dream heist movie"}`, nil)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "rate limited") {
		t.Fatalf("provider failure = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSimilar(t *testing.T) {
	ts := buildTestServer(t)
	rec := ts.do(t, http.MethodPost, "/movies/import", `{"title":"Inception"}`, map[string]string{"Authorization": "Bearer secret"})
	var imported importResponse
	decodeBody(t, rec, &imported)
	path := "/movies/" + imported.Movie.ID + "/similar"
	session := map[string]string{sessionHeader: "s1"}

	ts.provider.reply = "1. Interstellar\n2. Inception\n3. Memento"
	rec = ts.do(t, http.MethodGet, path+"?temperature=5", "", session)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got similarResponse
	decodeBody(t, rec, &got)
	if got.Temperature != suggest.RecommendTemperature || got.Recorded != 3 || len(got.Recommendations) != 3 {
		t.Fatalf("similar = %+v", got)
	}
	if got.Recommendations[1].Movie == nil || got.Recommendations[1].Movie.ID != imported.Movie.ID {
		t.Fatalf("Inception should match the catalog: %+v", got.Recommendations[1])
	}

	ts.provider.reply = "Memento\nTenet"
	rec = ts.do(t, http.MethodGet, path, "", session)
	decodeBody(t, rec, &got)
	if got.Recorded != 1 || len(got.Recommendations) != 2 {
		t.Fatalf("second round = %+v", got)
	}
	if !strings.Contains(ts.provider.lastPrompt(), "Interstellar, Inception, Memento") {
		t.Fatalf("prompt should exclude shown titles: %s", ts.provider.lastPrompt())
	}

	if rec := ts.do(t, http.MethodGet, "/movies/00000000-0000-0000-0000-000000000000/similar", "", session); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown movie status = %d, want 404", rec.Code)
	}
}

func TestHandleMetadataPreview(t *testing.T) {
	ts := buildTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metadata?externalId=tt1375666", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got movieResponse
	decodeBody(t, rec, &got)
	if got.ID != "" || got.Title != "Inception" || got.SeedRating == nil || *got.SeedRating != 4.5 {
		t.Fatalf("preview = %+v", got)
	}
	if rec := ts.do(t, http.MethodGet, "/movies", "", nil); !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("preview must not write to the catalog: %s", rec.Body.String())
	}
	if rec := ts.do(t, http.MethodGet, "/metadata", "", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty lookup status = %d, want 422", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/metadata?year=abc&title=x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad year status = %d, want 400", rec.Code)
	}
}

func TestHandleListMovies_InvalidYear(t *testing.T) {
	ts := buildTestServer(t)
	if rec := ts.do(t, http.MethodGet, "/movies?year=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/movies/top?limit=0", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("top status = %d, want 400", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	ts := buildTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}
