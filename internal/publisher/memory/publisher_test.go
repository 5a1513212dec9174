package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", crawler.CompletionEvent{Title: "a", Records: 3})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "topic-b", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "topic-a" || msgs[1].Topic != "topic-b" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}

	events := pub.Events()
	if len(events) != 1 || events[0].Title != "a" || events[0].Records != 3 {
		t.Fatalf("expected one completion event, got %+v", events)
	}
}

func TestPublisherInjectedError(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.Err = errors.New("unavailable")
	if _, err := pub.Publish(context.Background(), "t", "x"); err == nil {
		t.Fatal("expected injected error")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
}
