package stats

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Counts(t *testing.T) {
	tr := New()

	tr.Datagram(100)
	tr.Datagram(50)
	tr.Frame(41, 2)
	tr.Frame(42, 3)
	tr.DecodeError()
	tr.Unsupported()
	tr.Duplicate()

	got := tr.Snapshot()
	assert.Equal(t, int64(2), got["datagrams"])
	assert.Equal(t, int64(150), got["bytes"])
	assert.Equal(t, int64(2), got["frames"])
	assert.Equal(t, int64(5), got["rigid_bodies"])
	assert.Equal(t, int64(1), got["decode_errors"])
	assert.Equal(t, int64(1), got["unsupported"])
	assert.Equal(t, int64(1), got["duplicates"])
	assert.Equal(t, int64(42), got["last_frame"])
}

func TestTracker_NilIsNoOp(t *testing.T) {
	var tr *Tracker
	assert.NotPanics(t, func() {
		tr.Datagram(10)
		tr.Frame(1, 1)
		tr.DecodeError()
		tr.Unsupported()
		tr.Duplicate()
	})
	assert.Empty(t, tr.Snapshot())
}

func TestTracker_ServeHTTP(t *testing.T) {
	tr := New()
	tr.Datagram(64)
	tr.Frame(7, 1)

	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got["datagrams"])
	assert.Equal(t, int64(64), got["bytes"])
	assert.Equal(t, int64(7), got["last_frame"])
}
