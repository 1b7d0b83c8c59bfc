package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/internal/service/auth"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid credentials", err: auth.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "invalid refresh token", err: auth.ErrInvalidRefreshToken, want: http.StatusUnauthorized},
		{name: "repository miss", err: repository.ErrNotFound, want: http.StatusNotFound},
		{name: "not found kind", err: apperr.New(apperr.KindNotFound, "team not found"), want: http.StatusNotFound},
		{name: "forbidden", err: apperr.New(apperr.KindForbidden, "nope"), want: http.StatusForbidden},
		{name: "conflict", err: apperr.New(apperr.KindConflict, "already a member"), want: http.StatusConflict},
		{name: "invalid transition", err: apperr.New(apperr.KindInvalidTransition, "cannot skip review"), want: http.StatusUnprocessableEntity},
		{name: "bad request", err: apperr.New(apperr.KindBadRequest, "bad dates"), want: http.StatusBadRequest},
		{name: "plain error", err: errors.New("db down"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusOf(tc.err); got != tc.want {
				t.Fatalf("statusOf(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestWriteServiceErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["error"] != "internal error" {
		t.Fatalf("internal detail leaked: %q", body["error"])
	}

	rec = httptest.NewRecorder()
	writeServiceError(rec, apperr.New(apperr.KindForbidden, "you must be a team admin"))
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["error"] != "you must be a team admin" {
		t.Fatalf("expected the service message, got %q", body["error"])
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer tok", want: "tok"},
		{name: "missing", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcg==", wantErr: true},
		{name: "no token", header: "Bearer", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path   string
		prefix string
		want   []string
	}{
		{path: "/teams/abc", prefix: "/teams/", want: []string{"abc"}},
		{path: "/teams/abc/members/uid", prefix: "/teams/", want: []string{"abc", "members", "uid"}},
		{path: "/teams/abc/", prefix: "/teams/", want: []string{"abc"}},
		{path: "/teams/", prefix: "/teams/", want: nil},
	}
	for _, tc := range cases {
		got := splitPath(tc.path, tc.prefix)
		if len(got) != len(tc.want) {
			t.Fatalf("splitPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitPath(%q) = %v, want %v", tc.path, got, tc.want)
			}
		}
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	if ip := clientIP(req); ip != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.9")
	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", ip)
	}
}
