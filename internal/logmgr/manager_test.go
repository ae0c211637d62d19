package logmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoikida/Orthrus/internal/arena"
)

func TestNewLogWritesAVerifiableFrame(t *testing.T) {
	a := arena.New(4096)
	mgr := New(a, 4096, 256, nil)

	args := Args{Key: []byte("abcd"), Value: []byte("12345678")}
	res := Result{Status: "CREATED", Value: args.Value}

	f, err := mgr.NewLog(OpSet, args, res, 1000, nil)
	require.NoError(t, err)
	require.NoError(t, f.checkInvariants())
	require.Equal(t, OpSet, f.Op)
	require.Equal(t, args.Key, f.Args.Key)
}

func TestNewLogRejectsOversizedFrame(t *testing.T) {
	a := arena.New(64)
	mgr := New(a, 64, 16, nil)

	args := Args{Key: make([]byte, 256), Value: make([]byte, 256)}
	_, err := mgr.NewLog(OpSet, args, Result{}, 0, nil)
	require.Error(t, err)
}

func TestManagerRotatesSlabNearMinThreshold(t *testing.T) {
	a := arena.New(256)
	mgr := New(a, 256, 200, nil)

	args := Args{Key: []byte("abcd"), Value: []byte("12345678")}
	f1, err := mgr.NewLog(OpSet, args, Result{Status: "CREATED"}, 0, nil)
	require.NoError(t, err)

	f2, err := mgr.NewLog(OpSet, args, Result{Status: "STORED"}, 1, nil)
	require.NoError(t, err)

	require.NotSame(t, f1.Slab(), f2.Slab(), "remaining room below min threshold should force a fresh slab")
}

func TestReclaimReleasesSlabOnlyWhenFullyDrained(t *testing.T) {
	a := arena.New(4096)
	mgr := New(a, 4096, 256, nil)
	args := Args{Key: []byte("abcd"), Value: []byte("12345678")}

	f1, err := mgr.NewLog(OpSet, args, Result{}, 0, nil)
	require.NoError(t, err)
	f2, err := mgr.NewLog(OpGet, args, Result{}, 1, nil)
	require.NoError(t, err)

	require.Equal(t, int64(1), a.Outstanding())

	Reclaim(a, f1)
	require.Equal(t, int64(1), a.Outstanding(), "slab still in use by the producer, must not be released yet")

	f1.Slab().MarkFull()
	Reclaim(a, f2)
	require.Equal(t, int64(0), a.Outstanding(), "slab fully reclaimed and marked full, must be released")
}

func TestTicketRaiseUnblocksWait(t *testing.T) {
	ticket := NewTicket()
	done := make(chan struct{})
	go func() {
		ticket.Wait()
		close(done)
	}()
	ticket.Raise()
	<-done
}
