package relay

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/mill-arena/pkg/milldto"
)

type fakeRelay struct {
	mu       sync.Mutex
	failures int
	status   int
	got      []Event
	headers  []string
}

func (f *fakeRelay) handle(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if string(ctx.Path()) == "/health" {
		ctx.SetStatusCode(fasthttp.StatusOK)
		return
	}
	if f.failures > 0 {
		f.failures--
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}
	if f.status != 0 {
		ctx.SetStatusCode(f.status)
		ctx.SetBodyString("nope")
		return
	}
	var ev Event
	if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	f.got = append(f.got, ev)
	f.headers = append(f.headers, string(ctx.Request.Header.Peek("X-Relay-Key")))
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (f *fakeRelay) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.got...)
}

func newTestClient(t *testing.T, f *fakeRelay, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: f.handle}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	dial := func(string) (net.Conn, error) { return ln.Dial() }
	return NewClient("http://relay.local/", append([]Option{WithDialer(dial)}, opts...)...)
}

func envelope(t *testing.T, typ string, payload any) milldto.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return milldto.Envelope{Type: typ, Payload: raw}
}

func TestForwardPostsEvent(t *testing.T) {
	f := &fakeRelay{}
	c := newTestClient(t, f, WithHeaderProvider(func() map[string]string {
		return map[string]string{"X-Relay-Key": "k1", " ": "skipped"}
	}))

	env := envelope(t, milldto.EventTournamentStarted, milldto.TournamentView{ID: "t1", Name: "Daily Arena 1+0"})
	if err := c.Forward(context.Background(), "tournaments", env); err != nil {
		t.Fatalf("forward: %v", err)
	}
	got := f.events()
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	if got[0].Topic != "tournaments" || got[0].Type != milldto.EventTournamentStarted {
		t.Fatalf("unexpected event %+v", got[0])
	}
	if !strings.Contains(string(got[0].Payload), "Daily Arena") {
		t.Fatalf("payload not carried: %s", got[0].Payload)
	}
	if f.headers[0] != "k1" {
		t.Fatalf("header not injected")
	}
}

func TestForwardRetriesServerErrors(t *testing.T) {
	f := &fakeRelay{failures: 2}
	c := newTestClient(t, f, WithRetry(3))
	if err := c.Forward(context.Background(), "tournaments", envelope(t, "x", 1)); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if len(f.events()) != 1 {
		t.Fatalf("expected delivery after retries")
	}
}

func TestForwardDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeRelay{status: fasthttp.StatusBadRequest}
	c := newTestClient(t, f)
	err := c.Forward(context.Background(), "tournaments", envelope(t, "x", 1))
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTopicFilterAndDryRun(t *testing.T) {
	f := &fakeRelay{}
	c := newTestClient(t, f, WithTopics("tournaments"))
	if err := c.Forward(context.Background(), "match:1", envelope(t, "x", 1)); err != nil {
		t.Fatalf("filtered forward: %v", err)
	}
	if len(f.events()) != 0 {
		t.Fatalf("filtered topic must not be sent")
	}

	dry := newTestClient(t, f, WithDryRun(true))
	if err := dry.Forward(context.Background(), "tournaments", envelope(t, "x", 1)); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(f.events()) != 0 {
		t.Fatalf("dry run must not send")
	}
	if err := dry.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	if backoffDuration(1) >= backoffDuration(2) {
		t.Fatalf("backoff should grow")
	}
	if backoffDuration(10) != backoffDuration(6) {
		t.Fatalf("backoff should be capped")
	}
}
