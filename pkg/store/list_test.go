package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// Listing order must follow (timestamp, message_id) regardless of write
// order and regardless of which turns are user vs model authored.
func TestListThreadChronologicalOrder(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	ident := testIdent()

	appends := []struct {
		id    string
		ts    int64
		model bool
	}{
		{"d", 40, true},
		{"a", 10, false},
		{"c", 30, false},
		{"b", 20, true},
		{"b2", 20, false}, // same timestamp, id tie-break
	}
	for _, a := range appends {
		m := userMsg("th1", a.id, a.ts, "body-"+a.id)
		if a.model {
			m = modelMsg("th1", a.id, a.ts, "body-"+a.id)
		}
		if _, err := AppendMessage(ctx, ident, m, ThreadOptions{}); err != nil {
			t.Fatalf("append %s: %v", a.id, err)
		}
	}

	msgs, next, err := ListThread(ctx, ident, "th1", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if next != "" {
		t.Fatalf("unexpected next page token %q", next)
	}
	want := []string{"a", "b", "b2", "c", "d"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].MessageID != id {
			t.Fatalf("position %d: got %s, want %s", i, msgs[i].MessageID, id)
		}
	}
}

func TestListThreadPagination(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	ident := testIdent()

	const total = 7
	for i := 0; i < total; i++ {
		m := userMsg("th1", fmt.Sprintf("m%02d", i), int64(100+i), "x")
		if i%2 == 1 {
			m = modelMsg("th1", fmt.Sprintf("m%02d", i), int64(100+i), "x")
		}
		if _, err := AppendMessage(ctx, ident, m, ThreadOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	token := ""
	pages := 0
	for {
		msgs, next, err := ListThread(ctx, ident, "th1", token, 3)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		for _, m := range msgs {
			got = append(got, m.MessageID)
		}
		pages++
		if next == "" {
			break
		}
		token = next
		if pages > total {
			t.Fatal("pagination does not terminate")
		}
	}
	if len(got) != total {
		t.Fatalf("paged listing returned %d messages, want %d: %v", len(got), total, got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("page boundary broke ordering: %v", got)
		}
	}
}

func TestListThreadMalformedToken(t *testing.T) {
	openTestStore(t)
	_, _, err := ListThread(context.Background(), testIdent(), "th1", "not a cursor", 0)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
	_, _, err = ListThreadsByRecency(context.Background(), testIdent(), "@@@", 0)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestListThreadEmptyAndUnknown(t *testing.T) {
	openTestStore(t)
	msgs, next, err := ListThread(context.Background(), testIdent(), "no-such-thread", "", 0)
	if err != nil {
		t.Fatalf("listing an unknown thread should be empty, not an error: %v", err)
	}
	if len(msgs) != 0 || next != "" {
		t.Fatalf("got %d messages, token %q", len(msgs), next)
	}
}

func TestListThreadsByRecency(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	ident := testIdent()

	// A active at 10, B at 30, then A again at 40: A must list first
	steps := []struct {
		thread, id string
		ts         int64
	}{
		{"A", "m1", 10},
		{"B", "m2", 30},
		{"A", "m3", 40},
	}
	for _, s := range steps {
		if _, err := AppendMessage(ctx, ident, userMsg(s.thread, s.id, s.ts, "x"), ThreadOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	threads, next, err := ListThreadsByRecency(ctx, ident, "", 0)
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if next != "" {
		t.Fatalf("unexpected token %q", next)
	}
	if len(threads) != 2 {
		t.Fatalf("got %d threads, want 2 (no duplicate rows per thread)", len(threads))
	}
	if threads[0].ThreadID != "A" || threads[1].ThreadID != "B" {
		t.Fatalf("order = [%s %s], want [A B]", threads[0].ThreadID, threads[1].ThreadID)
	}
	if threads[0].LastTimestamp != 40 {
		t.Fatalf("thread A last_timestamp = %d, want 40", threads[0].LastTimestamp)
	}
}

func TestListThreadsByRecencyPagination(t *testing.T) {
	openTestStore(t)
	ctx := context.Background()
	ident := testIdent()

	const total = 5
	for i := 0; i < total; i++ {
		th := fmt.Sprintf("th%d", i)
		if _, err := AppendMessage(ctx, ident, userMsg(th, fmt.Sprintf("m%d", i), int64(100+i), "x"), ThreadOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	token := ""
	for {
		threads, next, err := ListThreadsByRecency(ctx, ident, token, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, th := range threads {
			got = append(got, th.ThreadID)
		}
		if next == "" {
			break
		}
		token = next
		if len(got) > total {
			t.Fatalf("pagination runaway: %v", got)
		}
	}
	want := []string{"th4", "th3", "th2", "th1", "th0"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
