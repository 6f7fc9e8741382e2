// Command metadata-mock serves a fixed set of OMDb-shaped records for local
// runs and contract tests.
package main

import (
	_ "embed"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movieweb/internal/logging"
)

//go:embed fixtures.json
var defaultFixtures []byte

type record struct {
	IMDbID     string `json:"imdbID"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Writer     string `json:"Writer"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Language   string `json:"Language"`
	Country    string `json:"Country"`
	Awards     string `json:"Awards"`
	Poster     string `json:"Poster"`
	Metascore  string `json:"Metascore"`
	IMDbRating string `json:"imdbRating"`
	IMDbVotes  string `json:"imdbVotes"`
	Response   string `json:"Response"`
}

type failure struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "", "path to a JSON array of records; defaults to the built-in set")
		apiKey  = flag.String("apikey", "", "reject requests without this apikey when set")
		latency = flag.Duration("latency", 0, "delay every response, to exercise client timeouts")
	)
	flag.Parse()

	logger := logging.New(logging.Options{Format: "console", Service: "metadata-mock"})

	payload := defaultFixtures
	if *data != "" {
		file, err := os.ReadFile(*data)
		if err != nil {
			logger.Fatal().Err(err).Msg("read mock data")
		}
		payload = file
	}

	var records []record
	if err := json.Unmarshal(payload, &records); err != nil {
		logger.Fatal().Err(err).Msg("parse mock data")
	}

	addr := ":" + *port
	logger.Info().Str("addr", addr).Int("records", len(records)).Msg("mock metadata listening")
	if err := http.ListenAndServe(addr, newHandler(records, *apiKey, *latency, logger)); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newHandler(records []record, apiKey string, latency time.Duration, logger zerolog.Logger) http.Handler {
	byID := make(map[string]record, len(records))
	byTitle := make(map[string][]record, len(records))
	for _, r := range records {
		r.Response = "True"
		byID[r.IMDbID] = r
		key := strings.ToLower(r.Title)
		byTitle[key] = append(byTitle[key], r)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}

		q := r.URL.Query()
		logger.Debug().Str("t", q.Get("t")).Str("i", q.Get("i")).Str("y", q.Get("y")).Msg("lookup")

		if apiKey != "" && q.Get("apikey") != apiKey {
			writeJSON(w, http.StatusUnauthorized, failure{Response: "False", Error: "Invalid API key!"})
			return
		}

		if id := q.Get("i"); id != "" {
			rec, ok := byID[id]
			if !ok {
				writeJSON(w, http.StatusOK, failure{Response: "False", Error: "Incorrect IMDb ID."})
				return
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}

		title := strings.ToLower(strings.TrimSpace(q.Get("t")))
		if title == "" {
			writeJSON(w, http.StatusOK, failure{Response: "False", Error: "Incorrect IMDb ID."})
			return
		}
		year := q.Get("y")
		for _, rec := range byTitle[title] {
			if year == "" || strings.HasPrefix(rec.Year, year) {
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		writeJSON(w, http.StatusOK, failure{Response: "False", Error: "Movie not found!"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
