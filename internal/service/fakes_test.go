package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/iliyamo/campus-events/internal/oauth"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/storage"
)

type fakeImages struct {
	mu      sync.Mutex
	fail    bool
	n       int
	deleted []string
}

func (f *fakeImages) Upload(_ context.Context, img storage.Image) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ""
	}
	_, _ = io.Copy(io.Discard, img.Body)
	f.n++
	return "https://cdn.test/events/" + string(rune('a'+f.n)) + ".png"
}

func (f *fakeImages) Delete(_ context.Context, url string) {
	if url == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
}

func (f *fakeImages) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.EventChanged
	delay  time.Duration
}

func (p *fakePublisher) Publish(_ context.Context, ev queue.EventChanged) error {
	time.Sleep(p.delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Action
	}
	return out
}

func (p *fakePublisher) has(action string) bool {
	for _, a := range p.actions() {
		if a == action {
			return true
		}
	}
	return false
}

type fakeGoogle struct {
	identity *oauth.GoogleIdentity
	err      error
}

func (g fakeGoogle) Verify(context.Context, string) (*oauth.GoogleIdentity, error) {
	return g.identity, g.err
}
