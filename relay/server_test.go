package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakilkhan1801/NYXAR/presence"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/transport"
	"github.com/shakilkhan1801/NYXAR/wire"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewMemoryStore()
	r := New(presence.NewRegistry(store), store)
	srv, err := NewServer("127.0.0.1:0", nil, r)
	require.NoError(t, err)
	go srv.Serve(context.Background())
	t.Cleanup(func() { srv.Close() })
	return srv
}

// testClient dials the server, registers the identity, and collects
// incoming frames on per-type channels.
type testClient struct {
	client    *transport.Client
	messages  chan wire.Envelope
	signals   chan wire.Signal
	sigErrors chan wire.SignalError
	directory chan wire.DirectoryResponse
}

func dialClient(t *testing.T, srv *Server, id string) *testClient {
	t.Helper()
	client, err := transport.Dial(transport.ClientConfig{Addr: srv.Addr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	tc := &testClient{
		client:    client,
		messages:  make(chan wire.Envelope, 8),
		signals:   make(chan wire.Signal, 8),
		sigErrors: make(chan wire.SignalError, 8),
		directory: make(chan wire.DirectoryResponse, 8),
	}
	client.RegisterHandler(wire.PacketReceiveMessage, func(f wire.Frame) {
		var env wire.Envelope
		if f.Decode(&env) == nil {
			tc.messages <- env
		}
	})
	client.RegisterHandler(wire.PacketSignal, func(f wire.Frame) {
		var sig wire.Signal
		if f.Decode(&sig) == nil {
			tc.signals <- sig
		}
	})
	client.RegisterHandler(wire.PacketSignalError, func(f wire.Frame) {
		var se wire.SignalError
		if f.Decode(&se) == nil {
			tc.sigErrors <- se
		}
	})
	client.RegisterHandler(wire.PacketDirectoryResponse, func(f wire.Frame) {
		var dir wire.DirectoryResponse
		if f.Decode(&dir) == nil {
			tc.directory <- dir
		}
	})
	client.Start()

	require.NoError(t, client.Send(wire.PacketRegister, wire.Register{ID: id, Username: id}))

	// Registration is acknowledged with a directory push.
	select {
	case <-tc.directory:
	case <-time.After(2 * time.Second):
		t.Fatalf("no directory response after register for %s", id)
	}
	return tc
}

func TestServerRoutesMessageBetweenClients(t *testing.T) {
	srv := startServer(t)
	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")

	env := envelope("m1", "alice", "bob")
	require.NoError(t, alice.client.Send(wire.PacketPrivateMessage, wire.PrivateMessage{
		ReceiverID: "bob",
		Envelope:   env,
	}))

	select {
	case got := <-bob.messages:
		assert.Equal(t, "m1", got.ID)
		assert.Equal(t, "alice", got.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not routed")
	}
}

func TestServerQueuesAndFlushesAcrossReconnect(t *testing.T) {
	srv := startServer(t)
	alice := dialClient(t, srv, "alice")

	// Bob is not connected yet; the message must queue.
	require.NoError(t, alice.client.Send(wire.PacketPrivateMessage, wire.PrivateMessage{
		ReceiverID: "bob",
		Envelope:   envelope("m1", "alice", "bob"),
	}))

	// Give the relay time to queue before bob appears.
	time.Sleep(100 * time.Millisecond)

	bob := dialClient(t, srv, "bob")
	select {
	case got := <-bob.messages:
		assert.Equal(t, "m1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("queued message not flushed on registration")
	}
}

func TestServerSignalToOfflineTargetReturnsError(t *testing.T) {
	srv := startServer(t)
	alice := dialClient(t, srv, "alice")

	require.NoError(t, alice.client.Send(wire.PacketSignal, wire.Signal{
		TargetID: "bob",
		Signal:   wire.SignalMessage{Type: wire.SignalOffer, CallID: "c1", Timestamp: wire.NowMillis()},
	}))

	select {
	case se := <-alice.sigErrors:
		assert.Equal(t, wire.CodeUserOffline, se.Code)
		assert.Equal(t, "bob", se.TargetID)
	case <-time.After(2 * time.Second):
		t.Fatal("no signal error for offline target")
	}
}

func TestServerForwardsSignalLive(t *testing.T) {
	srv := startServer(t)
	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")

	require.NoError(t, alice.client.Send(wire.PacketSignal, wire.Signal{
		TargetID: "bob",
		Signal:   wire.SignalMessage{Type: wire.SignalOffer, CallID: "c1", Timestamp: wire.NowMillis(), IsVideo: true},
	}))

	select {
	case sig := <-bob.signals:
		assert.Equal(t, "alice", sig.SenderID)
		assert.Equal(t, wire.SignalOffer, sig.Signal.Type)
		assert.True(t, sig.Signal.IsVideo)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not forwarded")
	}
}

func TestServerIgnoresTrafficBeforeRegister(t *testing.T) {
	srv := startServer(t)

	client, err := transport.Dial(transport.ClientConfig{Addr: srv.Addr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	client.Start()

	// Unregistered senders get their traffic dropped, not routed.
	require.NoError(t, client.Send(wire.PacketPrivateMessage, wire.PrivateMessage{
		ReceiverID: "bob",
		Envelope:   envelope("m1", "ghost", "bob"),
	}))

	time.Sleep(100 * time.Millisecond)
	bob := dialClient(t, srv, "bob")
	select {
	case env := <-bob.messages:
		t.Fatalf("unexpected delivery from unregistered sender: %+v", env)
	case <-time.After(300 * time.Millisecond):
	}
}
