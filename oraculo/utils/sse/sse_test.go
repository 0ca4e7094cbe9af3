package sse

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

func TestSend(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := SendChunk(w, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := Send(w, Event{ID: "7", Retry: 1000, Data: "raw"}); err != nil {
		t.Fatal(err)
	}
	if err := SendError(w, "provider_call_failed", errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	want := "event: chunk\ndata: {\"text\":\"hello\"}\n\n" +
		"id: 7\nretry: 1000\ndata: raw\n\n" +
		"event: error\ndata: {\"message\":\"boom\",\"type\":\"provider_call_failed\"}\n\n"
	if buf.String() != want {
		t.Errorf("got %q\nwant %q", buf.String(), want)
	}
}
