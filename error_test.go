package newrows_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rushairer/newrows"
)

func TestErrors_SentinelMatching(t *testing.T) {
	cause := errors.New("cause")
	cases := []struct {
		err      error
		sentinel error
	}{
		{&newrows.ConfigurationError{Field: "x", Message: "bad"}, newrows.ErrConfiguration},
		{&newrows.ConnectionError{Op: "acquire", Err: cause}, newrows.ErrConnection},
		{&newrows.QueryError{Query: "SELECT 1", Err: cause}, newrows.ErrQuery},
		{&newrows.WriteError{Table: "t"}, newrows.ErrWrite},
		{fmt.Errorf("load: %w", &newrows.QueryError{Err: cause}), newrows.ErrQuery},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Errorf("%v does not match %v", tc.err, tc.sentinel)
		}
	}
	if !errors.Is(&newrows.ConnectionError{Op: "ping", Err: cause}, cause) {
		t.Error("ConnectionError does not unwrap")
	}
}

func TestWriteError(t *testing.T) {
	boom := errors.New("boom")
	we := &newrows.WriteError{
		Table: "t",
		Failures: []*newrows.ChunkError{
			{Index: 0, Range: newrows.Range{Start: 0, End: 100}, Err: boom},
			{Index: 1, Range: newrows.Range{Start: 100, End: 1100}, Err: newrows.ErrChunkSkipped},
		},
	}
	if !errors.Is(we, boom) || !errors.Is(we, newrows.ErrChunkSkipped) {
		t.Fatal("WriteError does not expose chunk causes")
	}
	if we.Skipped() != 1 {
		t.Fatalf("Skipped = %d", we.Skipped())
	}
	if got := we.Ranges(); len(got) != 2 || got[1].End != 1100 {
		t.Fatalf("Ranges = %v", got)
	}
	var ce *newrows.ChunkError
	if !errors.As(we, &ce) || ce.Index != 0 {
		t.Fatalf("errors.As ChunkError = %v", ce)
	}
	msg := we.Error()
	if !strings.Contains(msg, "2 chunk(s) failed writing t") || !strings.Contains(msg, "[100,1100)") {
		t.Fatalf("unexpected message %q", msg)
	}
}
