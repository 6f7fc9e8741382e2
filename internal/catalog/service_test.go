package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/pgtest"
	"github.com/Clark-Hu/movieweb/internal/repository"
)

type fakeMetadata struct {
	mu      sync.Mutex
	byID    map[string]domain.MetadataBundle
	byTitle map[string]domain.MetadataBundle
	err     error
	calls   int
}

func newFakeMetadata(bundles ...domain.MetadataBundle) *fakeMetadata {
	f := &fakeMetadata{
		byID:    make(map[string]domain.MetadataBundle),
		byTitle: make(map[string]domain.MetadataBundle),
	}
	for _, b := range bundles {
		if b.ExternalID != "" {
			f.byID[b.ExternalID] = b
		}
		f.byTitle[strings.ToLower(b.Title)] = b
	}
	return f
}

func (f *fakeMetadata) Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.byTitle[strings.ToLower(title)]
	if !ok {
		return nil, fmt.Errorf("metadata: %w", domain.ErrNotFound)
	}
	return &b, nil
}

func (f *fakeMetadata) LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.byID[externalID]
	if !ok {
		return nil, fmt.Errorf("metadata: %w", domain.ErrNotFound)
	}
	return &b, nil
}

func (f *fakeMetadata) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type serviceEnv struct {
	ctx      context.Context
	repo     *repository.Repository
	metadata *fakeMetadata
	svc      *Service
}

func newServiceEnv(t *testing.T, bundles ...domain.MetadataBundle) *serviceEnv {
	t.Helper()
	repo := repository.NewWithPool(pgtest.NewPool(t))
	md := newFakeMetadata(bundles...)
	return &serviceEnv{
		ctx:      context.Background(),
		repo:     repo,
		metadata: md,
		svc: NewService(repo, md, Options{
			LookupTimeout: time.Second,
			Logger:        zerolog.Nop(),
			Clock:         func() time.Time { return fixedNow },
		}),
	}
}

func (e *serviceEnv) user(t *testing.T, name string) domain.User {
	t.Helper()
	u, err := e.svc.CreateUser(e.ctx, name)
	require.NoError(t, err)
	return u
}

func (e *serviceEnv) movie(t *testing.T, id string) domain.CatalogMovie {
	t.Helper()
	m, err := e.repo.Movies.GetByID(e.ctx, id)
	require.NoError(t, err)
	return m
}

func requireAggregate(t *testing.T, m domain.CatalogMovie, wantRating float64, wantCount int) {
	t.Helper()
	require.Equal(t, wantCount, m.AggregateVoteCount)
	require.NotNil(t, m.AggregateRating)
	require.InDelta(t, wantRating, *m.AggregateRating, 1e-9)
}

func byExternalID(id string) Candidate {
	return Candidate{ExternalID: &id}
}

func TestService_TwoUsersShareOneCatalogMovie(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0001", Title: "First Light", Year: "2001", Rating: "N/A"})
	u := env.user(t, "u")
	v := env.user(t, "v")

	resU, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0001"), Rating: ptr(4.0)})
	require.NoError(t, err)
	assert.True(t, resU.MovieCreated)
	assert.Nil(t, resU.Movie.SeedRating)
	requireAggregate(t, resU.Movie, 4.0, 1)

	resV, err := env.svc.AddToList(env.ctx, AddRequest{UserID: v.ID, Candidate: byExternalID("tt0001"), Rating: ptr(2.0)})
	require.NoError(t, err)
	assert.False(t, resV.MovieCreated)
	assert.Equal(t, resU.Movie.ID, resV.Movie.ID)
	requireAggregate(t, resV.Movie, 3.0, 2)

	removed, err := env.svc.RemoveFromList(env.ctx, v.ID, resV.Movie.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	requireAggregate(t, env.movie(t, resU.Movie.ID), 4.0, 1)

	assert.Equal(t, 1, env.metadata.callCount(), "second add must resolve from the catalog")
}

func TestService_ImportSameExternalIDTwice(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{
		ExternalID: "tt0073195", Title: "Jaws", Year: "1975", Rating: "8.1", Director: "Steven Spielberg",
	})

	first, created, err := env.svc.Import(env.ctx, byExternalID("tt0073195"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := env.svc.Import(env.ctx, byExternalID("tt0073195"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Details, second.Details)
	assert.Equal(t, first.SeedRating, second.SeedRating)

	page, err := env.svc.Movies(env.ctx, repository.MovieListFilters{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestService_SeedRatingCountsAsOneVote(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0002", Title: "Seeded", Year: "1990", Rating: "8.0"})
	u := env.user(t, "u")

	movie, created, err := env.svc.Import(env.ctx, byExternalID("tt0002"))
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, movie.SeedRating)
	assert.Equal(t, 4.0, *movie.SeedRating)
	requireAggregate(t, movie, 4.0, 1)

	res, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0002"), Rating: ptr(2.0)})
	require.NoError(t, err)
	requireAggregate(t, res.Movie, 3.0, 2)

	_, _, err = env.svc.SetRating(env.ctx, u.ID, movie.ID, nil)
	require.NoError(t, err)
	requireAggregate(t, env.movie(t, movie.ID), 4.0, 1)
}

func TestService_TitleYearMatchBackfillsExternalID(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{Title: "Alien", Year: "1979", Director: "Ridley Scott"})

	year := 1979
	first, created, err := env.svc.Import(env.ctx, Candidate{Title: "Alien", Year: &year})
	require.NoError(t, err)
	require.True(t, created)
	require.Nil(t, first.ExternalID)

	second, created, err := env.svc.Import(env.ctx, Candidate{ExternalID: ptr("tt0078748"), Title: "ALIEN", Year: &year})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ExternalID)
	assert.Equal(t, "tt0078748", *second.ExternalID)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Details, second.Details)
	assert.Equal(t, first.ReleaseYear, second.ReleaseYear)
	assert.Equal(t, 1, env.metadata.callCount())
}

func TestService_RemovingLastRatingResetsAggregate(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0003", Title: "Lonely", Year: "2005"})
	u := env.user(t, "u")

	res, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0003"), Rating: ptr(3.0)})
	require.NoError(t, err)
	requireAggregate(t, res.Movie, 3.0, 1)

	entry, outcome, err := env.svc.SetRating(env.ctx, u.ID, res.Movie.ID, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Nil(t, entry.PersonalRating)

	movie := env.movie(t, res.Movie.ID)
	assert.Nil(t, movie.AggregateRating)
	assert.Equal(t, 0, movie.AggregateVoteCount)

	removed, err := env.svc.RemoveFromList(env.ctx, u.ID, res.Movie.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.svc.RemoveFromList(env.ctx, u.ID, res.Movie.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestService_UnchangedRatingIsIgnored(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0004", Title: "Same", Year: "2010"})
	u := env.user(t, "u")

	res, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0004"), Rating: ptr(4.0)})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Created: true, Changed: true}, res.Outcome)

	again, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0004"), Rating: ptr(4.0)})
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, again.Outcome)
	assert.True(t, res.Entry.UpdatedAt.Equal(again.Entry.UpdatedAt))

	_, outcome, err := env.svc.AddExisting(env.ctx, u.ID, res.Movie.ID)
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, outcome)

	entry, err := env.svc.Entry(env.ctx, u.ID, res.Movie.ID)
	require.NoError(t, err)
	require.NotNil(t, entry.PersonalRating)
	assert.Equal(t, 4.0, *entry.PersonalRating)
}

func TestService_RejectsInvalidInputBeforeAnyWork(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0005", Title: "Valid", Year: "2000"})
	u := env.user(t, "u")

	tests := []struct {
		name string
		req  AddRequest
	}{
		{"rating too high", AddRequest{UserID: u.ID, Candidate: byExternalID("tt0005"), Rating: ptr(5.5)}},
		{"negative rating", AddRequest{UserID: u.ID, Candidate: byExternalID("tt0005"), Rating: ptr(-1.0)}},
		{"no identifiers", AddRequest{UserID: u.ID, Candidate: Candidate{Title: "   "}}},
		{"future year", AddRequest{UserID: u.ID, Candidate: Candidate{Title: "Valid", Year: ptr(2030)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.AddToList(env.ctx, tt.req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	assert.Equal(t, 0, env.metadata.callCount())
	page, err := env.svc.Movies(env.ctx, repository.MovieListFilters{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestService_MetadataFailureWritesNothing(t *testing.T) {
	env := newServiceEnv(t)
	env.metadata.err = domain.External("metadata", "timed out", context.DeadlineExceeded)
	u := env.user(t, "u")

	_, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0006"), Rating: ptr(3.0)})
	require.ErrorIs(t, err, domain.ErrExternalService)
	reason, ok := domain.ExternalReason(err)
	require.True(t, ok)
	assert.Equal(t, "timed out", reason)

	page, err := env.svc.Movies(env.ctx, repository.MovieListFilters{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	list, err := env.svc.ListForUser(env.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_NotFoundCases(t *testing.T) {
	env := newServiceEnv(t)
	u := env.user(t, "u")

	_, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: Candidate{Title: "Unknown Movie"}})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.AddToList(env.ctx, AddRequest{UserID: "ghost", Candidate: Candidate{Title: "Unknown Movie"}})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = env.svc.SetRating(env.ctx, u.ID, "missing", ptr(2.0))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = env.svc.AddExisting(env.ctx, u.ID, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.ListForUser(env.ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_ConcurrentRatingsStayConsistent(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0007", Title: "Crowded", Year: "2015", Rating: "6.0"})
	movie, _, err := env.svc.Import(env.ctx, byExternalID("tt0007"))
	require.NoError(t, err)

	const workers = 8
	users := make([]domain.User, workers)
	for i := range users {
		users[i] = env.user(t, fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(userID string, rating float64) {
			defer wg.Done()
			_, err := env.svc.AddToList(env.ctx, AddRequest{UserID: userID, Candidate: byExternalID("tt0007"), Rating: &rating})
			assert.NoError(t, err)
		}(u.ID, float64(i%5))
	}
	wg.Wait()

	// seed 3.0 plus ratings 0,1,2,3,4,0,1,2 gives 16/9
	requireAggregate(t, env.movie(t, movie.ID), 1.78, workers+1)
}

func TestService_DeleteMovieCascades(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0008", Title: "Doomed", Year: "1999"})
	u := env.user(t, "u")

	res, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0008"), Rating: ptr(1.0)})
	require.NoError(t, err)
	_, err = env.svc.AddComment(env.ctx, res.Movie.ID, u.ID, "  meh  ")
	require.NoError(t, err)

	deleted, err := env.svc.DeleteMovie(env.ctx, res.Movie.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, err = env.svc.Movie(env.ctx, res.Movie.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	list, err := env.svc.ListForUser(env.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_RecomputeAllIsIdempotent(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0009", Title: "Stable", Year: "2003", Rating: "7.0"})
	u := env.user(t, "u")
	res, err := env.svc.AddToList(env.ctx, AddRequest{UserID: u.ID, Candidate: byExternalID("tt0009"), Rating: ptr(5.0)})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		n, err := env.svc.RecomputeAll(env.ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		requireAggregate(t, env.movie(t, res.Movie.ID), 4.25, 2)
	}
}

func TestService_UsersAndComments(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0010", Title: "Talked About", Year: "2012"})

	u, err := env.svc.CreateUser(env.ctx, "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)

	_, err = env.svc.CreateUser(env.ctx, "ALICE")
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = env.svc.CreateUser(env.ctx, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	movie, _, err := env.svc.Import(env.ctx, byExternalID("tt0010"))
	require.NoError(t, err)

	_, err = env.svc.AddComment(env.ctx, movie.ID, u.ID, "   ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	c, err := env.svc.AddComment(env.ctx, movie.ID, u.ID, "great")
	require.NoError(t, err)
	liked, err := env.svc.LikeComment(env.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikesCount)

	_, comments, err := env.svc.Movie(env.ctx, movie.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "alice", comments[0].UserName)
}

func TestService_MatchTitles(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{ExternalID: "tt0011", Title: "Known", Year: "2011"})
	movie, _, err := env.svc.Import(env.ctx, byExternalID("tt0011"))
	require.NoError(t, err)

	matches, err := env.svc.MatchTitles(env.ctx, []string{"Unknown", "known", "Other"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "Unknown", matches[0].Title)
	assert.Nil(t, matches[0].Movie)
	require.NotNil(t, matches[1].Movie)
	assert.Equal(t, movie.ID, matches[1].Movie.ID)
	assert.Nil(t, matches[2].Movie)
}

func TestService_PreviewWritesNothing(t *testing.T) {
	env := newServiceEnv(t, domain.MetadataBundle{
		ExternalID: "tt0012", Title: "Preview Me", Year: "2012–2014", Rating: "7.3", Writer: "N/A",
	})

	movie, err := env.svc.Preview(env.ctx, Candidate{Title: "preview me"})
	require.NoError(t, err)
	assert.Empty(t, movie.ID)
	assert.Equal(t, "Preview Me", movie.Title)
	require.NotNil(t, movie.ReleaseYear)
	assert.Equal(t, 2012, *movie.ReleaseYear)
	require.NotNil(t, movie.SeedRating)
	assert.Equal(t, 3.5, *movie.SeedRating)
	assert.Nil(t, movie.Details.Writer)

	_, err = env.repo.Movies.GetByExternalID(env.ctx, "tt0012")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Preview(env.ctx, Candidate{Title: "absent"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
