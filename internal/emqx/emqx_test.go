package emqx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "host only", url: "emqx:18083", want: "http://emqx:18083"},
		{name: "with scheme", url: "https://emqx.local/", want: "https://emqx.local"},
		{name: "missing", url: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tc.url, "key", "secret")
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.BaseURL != tc.want {
				t.Fatalf("BaseURL = %q, want %q", c.BaseURL, tc.want)
			}
		})
	}
}

func TestCreateUser(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.EscapedPath(), "/users") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["user_id"] == "taken" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"user_id":"dev-1","is_superuser":false}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "key", "secret")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.CreateUser(context.Background(), "dev-1", "pw", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if resp.UserID != "dev-1" || got["password"] != "pw" {
		t.Fatalf("unexpected response %+v / request %+v", resp, got)
	}

	if _, err := c.CreateUser(context.Background(), "taken", "pw", false); !errors.Is(err, ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}

	c.APISecret = "wrong"
	if _, err := c.CreateUser(context.Background(), "dev-1", "pw", false); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method != http.MethodDelete:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case strings.HasSuffix(r.URL.Path, "/gone"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/broken"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "key", "secret")
	ctx := context.Background()

	if err := c.DeleteUser(ctx, "dev-1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := c.DeleteUser(ctx, "gone"); err != nil {
		t.Fatalf("missing user should not fail: %v", err)
	}
	if err := c.DeleteUser(ctx, "broken"); err == nil {
		t.Fatal("expected error on 500")
	}
}
