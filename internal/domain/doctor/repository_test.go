package doctor

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func cachedRepository(t *testing.T) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRepository(nil, client, time.Minute, nil), mr
}

func TestSpecialtyCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := cachedRepository(t)

	doctors := []Doctor{
		{ID: "doc-1", FirstName: "Ada", LastName: "Nkemelu", Specialties: []string{"cardiology"}},
		{ID: "doc-2", FirstName: "Lena", LastName: "Ortiz", Specialties: []string{"cardiology", "internal medicine"},
			Contact: &Contact{Email: "lortiz@clinic.test"}},
	}
	repo.cacheSet(ctx, "cardiology", doctors)

	cached, ok := repo.cacheGet(ctx, "cardiology")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if len(cached) != 2 || cached[0].ID != "doc-1" || cached[1].Contact.Email != "lortiz@clinic.test" {
		t.Fatalf("unexpected cached doctors %+v", cached)
	}
}

func TestSpecialtyCacheMiss(t *testing.T) {
	ctx := context.Background()
	repo, _ := cachedRepository(t)

	if _, ok := repo.cacheGet(ctx, "dermatology"); ok {
		t.Fatal("expected a cache miss")
	}
}

func TestSpecialtyCacheExpires(t *testing.T) {
	ctx := context.Background()
	repo, mr := cachedRepository(t)

	repo.cacheSet(ctx, "cardiology", []Doctor{{ID: "doc-1"}})
	mr.FastForward(2 * time.Minute)

	if _, ok := repo.cacheGet(ctx, "cardiology"); ok {
		t.Fatal("expected the entry to have aged out")
	}
}

func TestFindBySpecialtyServedFromCache(t *testing.T) {
	// A nil pool would panic if the query path ran; a cache hit must not
	// touch PostgreSQL at all.
	ctx := context.Background()
	repo, _ := cachedRepository(t)
	repo.cacheSet(ctx, "cardiology", []Doctor{{ID: "doc-1", Specialties: []string{"cardiology"}}})

	doctors, err := repo.FindBySpecialty(ctx, "cardiology")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(doctors) != 1 || doctors[0].ID != "doc-1" {
		t.Fatalf("unexpected doctors %+v", doctors)
	}
}

func TestCacheDisabledWithNilClient(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(nil, nil, time.Minute, nil)

	repo.cacheSet(ctx, "cardiology", []Doctor{{ID: "doc-1"}})
	if _, ok := repo.cacheGet(ctx, "cardiology"); ok {
		t.Fatal("nil cache client must never hit")
	}
}
