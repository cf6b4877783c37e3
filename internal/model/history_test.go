package model

import (
	"fmt"
	"reflect"
	"testing"
)

func TestPushVisited(t *testing.T) {
	tests := []struct {
		name    string
		visited []string
		id      string
		want    []string
	}{
		{
			name:    "first visit",
			visited: nil,
			id:      "2",
			want:    []string{"2"},
		},
		{
			name:    "new id goes to the front",
			visited: []string{"2"},
			id:      "3",
			want:    []string{"3", "2"},
		},
		{
			name:    "revisit moves to the front without growing",
			visited: []string{"3", "2"},
			id:      "2",
			want:    []string{"2", "3"},
		},
		{
			name:    "already first is unchanged",
			visited: []string{"2", "3"},
			id:      "2",
			want:    []string{"2", "3"},
		},
		{
			name:    "oldest falls off at the cap",
			visited: []string{"8", "7", "6", "5", "4", "3", "2", "1"},
			id:      "9",
			want:    []string{"9", "8", "7", "6", "5", "4", "3", "2"},
		},
		{
			name:    "revisit at the cap keeps every other entry",
			visited: []string{"8", "7", "6", "5", "4", "3", "2", "1"},
			id:      "1",
			want:    []string{"1", "8", "7", "6", "5", "4", "3", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PushVisited(tt.visited, tt.id, MaxVisited)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PushVisited(%v, %q) = %v, want %v", tt.visited, tt.id, got, tt.want)
			}
		})
	}
}

func TestPushVisited_DoesNotModifyInput(t *testing.T) {
	visited := []string{"a", "b", "c"}
	PushVisited(visited, "b", MaxVisited)

	if !reflect.DeepEqual(visited, []string{"a", "b", "c"}) {
		t.Errorf("input was modified: %v", visited)
	}
}

func TestPushVisited_NineDistinctProfiles(t *testing.T) {
	var visited []string
	for i := 1; i <= 9; i++ {
		visited = PushVisited(visited, fmt.Sprint(i), MaxVisited)
	}

	want := []string{"9", "8", "7", "6", "5", "4", "3", "2"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("visited = %v, want %v", visited, want)
	}
}

func TestUserPortfolioEntry(t *testing.T) {
	u := &User{Portfolio: []PortfolioEntry{
		{Title: "s1", Description: "first"},
		{Title: "s2", Description: "second"},
	}}

	entry, ok := u.PortfolioEntry("s2")
	if !ok {
		t.Fatal("PortfolioEntry(s2) not found")
	}
	if entry.Description != "second" {
		t.Errorf("Description = %q, want %q", entry.Description, "second")
	}

	if _, ok := u.PortfolioEntry("s3"); ok {
		t.Error("PortfolioEntry(s3) found, want missing")
	}
}

func TestUserAverageRating(t *testing.T) {
	if got := (&User{}).AverageRating(); got != 0 {
		t.Errorf("AverageRating() unrated = %v, want 0", got)
	}
	if got := (&User{RateValue: 9, RateCount: 2}).AverageRating(); got != 4.5 {
		t.Errorf("AverageRating() = %v, want 4.5", got)
	}
}
