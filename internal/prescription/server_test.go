package prescription

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStopReturnsErrServerClosed(t *testing.T) {
	svc, _ := newTestService()
	server := NewServer(svc, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start("127.0.0.1:0") }()

	// give the listener a moment to come up
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, server.Stop())

	// a stopped server exits with ErrServerClosed, which callers treat as a
	// clean shutdown rather than a startup failure
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, http.ErrServerClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after Stop")
	}
}
