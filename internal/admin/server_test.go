package admin

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/PatrisiousHaddad/libreswan/internal/addr"
	"github.com/PatrisiousHaddad/libreswan/internal/connstore"
	"github.com/PatrisiousHaddad/libreswan/internal/kernel/mock"
	"github.com/PatrisiousHaddad/libreswan/internal/routing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytesPipe
	req := Request{Verb: VerbUp, ConnName: "alice", RemoteHost: "203.0.113.9"}
	if err := writeFrame(&buf, req); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var got Request
	if err := readFrame(&buf, &got); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("got %+v want %+v", got, req)
	}
}

// bytesPipe is a trivial in-memory io.ReadWriter for frame round-trip
// tests, since net.Pipe introduces unnecessary goroutine synchronization
// for a single synchronous encode/decode check.
type bytesPipe struct{ data []byte }

func (b *bytesPipe) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bytesPipe) Read(p []byte) (int, error) {
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func TestServerClientStatusAndListen(t *testing.T) {
	connstore.ResetSerialsForTest()
	store := connstore.NewStore()
	local, _ := addr.Parse("192.0.2.1")
	remote, _ := addr.Parse("192.0.2.2")
	c := &connstore.Connection{
		Name:       "srv-test",
		Serial:     connstore.NextSerial(),
		IKEVersion: 2,
		Kind:       connstore.KindPermanent,
		Local:      connstore.End{Host: local},
		Remote:     connstore.End{Host: remote},
	}
	if err := store.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	k := mock.New()
	eng := routing.NewEngine(&recordingHooks{k: k}, nil, t.Logf)
	disp := NewDispatcher(store, eng, &fakeInitiator{})
	srv := NewServer(disp)

	sockPath := filepath.Join(t.TempDir(), "admin.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, sockPath) }()

	var cl *Client
	var err error
	for i := 0; i < 50; i++ {
		cl, err = Dial(sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer cl.Close()

	resp, err := cl.Status("srv-test")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Code != RC_OK {
		t.Fatalf("got %v: %s", resp.Code, resp.Message)
	}

	events, err := cl.Listen(nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srv.Broadcast(Event{Name: "test-event", ConnName: "srv-test", Message: "hello"})

	select {
	case ev := <-events:
		if ev.Name != "test-event" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}

	cancel()
	_ = os.Remove(sockPath)
}
