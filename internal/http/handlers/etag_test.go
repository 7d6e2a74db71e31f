package handlers

import (
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

func TestListETag(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	base := ListUsersResponse{
		TotalCount:   2,
		Page:         1,
		ItemsPerPage: 10,
		Users: []user.User{
			{ID: "a", Name: "Ann", UpdatedAt: ts},
			{ID: "b", Name: "Bob", UpdatedAt: ts},
		},
	}

	etag := listETag(base)
	if etag != listETag(base) {
		t.Fatalf("etag must be deterministic")
	}

	updated := base
	updated.Users = []user.User{base.Users[0], {ID: "b", Name: "Bobby", UpdatedAt: ts.Add(time.Second)}}
	if listETag(updated) == etag {
		t.Fatalf("an updated row must change the etag")
	}

	grown := base
	grown.TotalCount = 3
	if listETag(grown) == etag {
		t.Fatalf("a new user elsewhere must change the etag")
	}

	otherPage := base
	otherPage.Page = 2
	if listETag(otherPage) == etag {
		t.Fatalf("the paging window is part of the etag")
	}
}

func TestETagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: "*", want: true},
		{header: `"abc"`, want: true},
		{header: `W/"abc"`, want: true},
		{header: `"zzz", "abc"`, want: true},
		{header: `"zzz"`, want: false},
	}

	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Fatalf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
