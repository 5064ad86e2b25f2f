package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/f-sync/listsync/internal/job"
)

func newListAPIServer(t *testing.T, addCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, httpRequest *http.Request) {
		if !strings.HasPrefix(httpRequest.Header.Get("Authorization"), "OAuth ") {
			http.Error(responseWriter, `{"errors":[{"code":32,"message":"Could not authenticate you."}]}`, http.StatusUnauthorized)
			return
		}
		responseWriter.Header().Set("Content-Type", "application/json")
		switch httpRequest.URL.Path {
		case "/account/verify_credentials.json":
			_, _ = responseWriter.Write([]byte(`{"id":42,"id_str":"42","friends_count":2}`))
		case "/friends/ids.json":
			_, _ = responseWriter.Write([]byte(`{"ids":[11,12],"next_cursor":0}`))
		case "/lists/list.json":
			_, _ = responseWriter.Write([]byte(`[{"id_str":"500","name":"Weekend Reading"}]`))
		case "/lists/members.json":
			_, _ = responseWriter.Write([]byte(`{"users":[{"id":12}],"next_cursor":0}`))
		case "/users/show.json":
			_, _ = responseWriter.Write([]byte(`{"id":11}`))
		case "/lists/members/create_all.json":
			addCalls.Add(1)
			_, _ = responseWriter.Write([]byte(`{"id_str":"500"}`))
		default:
			http.NotFound(responseWriter, httpRequest)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSyncCommandPrintsSummary(t *testing.T) {
	var addCalls atomic.Int32
	server := newListAPIServer(t, &addCalls)
	t.Setenv("LISTSYNC_TWITTER_API_BASE_URL", server.URL)
	t.Setenv("LISTSYNC_TWITTER_CONSUMER_KEY", "ck")
	t.Setenv("LISTSYNC_TWITTER_CONSUMER_SECRET", "cs")
	t.Setenv("LISTSYNC_TWITTER_ACCESS_TOKEN", "at")
	t.Setenv("LISTSYNC_TWITTER_ACCESS_TOKEN_SECRET", "ats")

	command := newSyncCommand()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetArgs([]string{"--list-name", "Weekend Reading", "--archive=false"})

	if err := command.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var summary job.Summary
	if err := json.Unmarshal(output.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", output.String(), err)
	}
	expected := job.Summary{ListID: "500", Friends: 2, ListMembers: 1, ToAdd: 1, Added: 1}
	if summary != expected {
		t.Fatalf("expected %+v, got %+v", expected, summary)
	}
	if addCalls.Load() != 1 {
		t.Fatalf("expected one add call, got %d", addCalls.Load())
	}
}
