package pullrequest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBitbucketClient_CreatePullRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody bitbucketCreateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42, "title": "Add login", "links": {"html": {"href": "https://bitbucket.org/acme/widgets/pull-requests/42"}}}`))
	}))
	defer server.Close()

	client := NewBitbucketClient(WithBaseURL(server.URL + "/"))
	created, err := client.CreatePullRequest(context.Background(), CreateRequest{
		Workspace:         "acme",
		RepoSlug:          "widgets",
		AuthHeader:        "Bearer tok",
		Title:             "Add login",
		Description:       "body",
		SourceBranch:      "feature/login",
		TargetBranch:      "main",
		CloseSourceBranch: true,
	})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}

	if gotPath != "/repositories/acme/widgets/pullrequests" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Source.Branch.Name != "feature/login" || gotBody.Destination.Branch.Name != "main" {
		t.Errorf("branches = %+v", gotBody)
	}
	if !gotBody.CloseSourceBranch {
		t.Error("close_source_branch not sent")
	}
	if created.ID != "42" || created.URL != "https://bitbucket.org/acme/widgets/pull-requests/42" {
		t.Errorf("created = %+v", created)
	}
}

func TestBitbucketClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewBitbucketClient(WithBaseURL(server.URL))
	_, err := client.CreatePullRequest(context.Background(), CreateRequest{Workspace: "a", RepoSlug: "b"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || !apiErr.IsAuth() {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.Body != "token expired" {
		t.Errorf("body = %q", apiErr.Body)
	}
}

func TestAPIError_IsAuth(t *testing.T) {
	for status, want := range map[int]bool{401: true, 403: true, 400: false, 500: false} {
		if got := (&APIError{StatusCode: status}).IsAuth(); got != want {
			t.Errorf("IsAuth(%d) = %v, want %v", status, got, want)
		}
	}
}
