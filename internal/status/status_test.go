package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "sillyreader/pkg/logx"
)

func TestKeyPerKind(t *testing.T) {
	t.Parallel()
	at := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		st   Status
		want string
	}{
		{name: "active", st: New("Active", []string{"a"}, "", at, at), want: "Active"},
		{name: "reward", st: New("Reward", nil, "Double Jellybeans", at, at), want: "Reward"},
		{name: "inactive", st: New("Inactive", nil, "", at, at), want: "Inactive"},
		{name: "unknown", st: New("Broken", nil, "", at, at), want: "Unknown:Broken"},
		{name: "http error", st: Failed(503, errors.New("x"), at), want: "503"},
		{name: "transport error", st: Failed(0, errors.New("x"), at), want: "0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.Key(); got != tt.want {
				t.Fatalf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewardsAreCopied(t *testing.T) {
	t.Parallel()
	in := []string{"Double Jellybeans", "Doodle Trick Boost"}
	st := New("Active", in, "", time.Time{}, time.Time{})
	in[0] = "mutated"
	got := st.Rewards()
	if got[0] != "Double Jellybeans" {
		t.Fatalf("status shares caller slice: %v", got)
	}
	got[1] = "mutated"
	if st.Rewards()[1] != "Doodle Trick Boost" {
		t.Fatal("Rewards() leaked internal slice")
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	st, err := Parse([]byte(`{"state":"Active","rewards":["B","A","C"],"asOf":100,"nextUpdateTimestamp":200}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if st.State != Active {
		t.Fatalf("State = %v, want Active", st.State)
	}
	r := st.Rewards()
	if len(r) != 3 || r[0] != "B" || r[1] != "A" || r[2] != "C" {
		t.Fatalf("reward order not preserved: %v", r)
	}
	if !st.AsOf.Equal(time.Unix(100, 0)) || !st.NextUpdateAt.Equal(time.Unix(200, 0)) {
		t.Fatalf("timestamps = %v / %v", st.AsOf, st.NextUpdateAt)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()
	bad := []string{
		`not json`,
		`{"state":"Active","asOf":1}`,
	}
	for _, b := range bad {
		if _, err := Parse([]byte(b)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", b, err)
		}
	}
}

func TestParseMissingOrOddStateIsUnknown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body string
		key  string
	}{
		{`{"asOf":1,"nextUpdateTimestamp":2}`, "Unknown:"},
		{`{"state":"","asOf":1,"nextUpdateTimestamp":2}`, "Unknown:"},
		{`{"state":"Sleeping","asOf":1,"nextUpdateTimestamp":2}`, "Unknown:Sleeping"},
	}
	for _, tt := range tests {
		st, err := Parse([]byte(tt.body))
		if err != nil {
			t.Fatalf("Parse(%s): %v", tt.body, err)
		}
		if st.State != Unknown || !st.OK() || st.Key() != tt.key {
			t.Errorf("Parse(%s) = state %v key %q, want Unknown %q", tt.body, st.State, st.Key(), tt.key)
		}
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	t.Parallel()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"Reward","winner":"Double Jellybeans","asOf":10,"nextUpdateTimestamp":20}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPConfig{URL: srv.URL, UserAgent: "test-agent"}, logx.Nop())
	st := src.Fetch(context.Background())
	if st.State != RewardActive || st.Winner != "Double Jellybeans" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if gotUA != "test-agent" {
		t.Fatalf("User-Agent = %q", gotUA)
	}
}

func TestHTTPSourceErrorsBecomeFetchError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		code     int
		body     string
		wantCode int
	}{
		{name: "server error", code: http.StatusServiceUnavailable, body: "down", wantCode: 503},
		{name: "not found", code: http.StatusNotFound, body: "", wantCode: 404},
		{name: "malformed", code: http.StatusOK, body: "{", wantCode: 200},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewHTTPSource(HTTPConfig{URL: srv.URL, RetryMax: 0}, logx.Nop())
			st := src.Fetch(context.Background())
			if st.State != FetchError {
				t.Fatalf("State = %v, want FetchError", st.State)
			}
			if st.ErrorCode != tt.wantCode {
				t.Fatalf("ErrorCode = %d, want %d", st.ErrorCode, tt.wantCode)
			}
			if st.Err == nil {
				t.Fatal("Err is nil")
			}
		})
	}
}

func TestHTTPSourceUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := NewHTTPSource(HTTPConfig{URL: url, Timeout: time.Second}, logx.Nop())
	st := src.Fetch(context.Background())
	if st.State != FetchError || st.ErrorCode != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Key() != "0" {
		t.Fatalf("Key() = %q", st.Key())
	}
}
