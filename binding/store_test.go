package binding

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIO 内存实现，failSave 置位时 Save 固定失败。
type memIO struct {
	records  map[string]int64
	failSave bool
	saves    int
}

func newMemIO() *memIO {
	return &memIO{records: map[string]int64{}}
}

func (m *memIO) Load() (map[string]int64, error) {
	out := make(map[string]int64, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *memIO) Save(records map[string]int64) error {
	m.saves++
	if m.failSave {
		return errors.New("disk full")
	}
	m.records = records
	return nil
}

func testStore(t *testing.T, io IO) *Store {
	t.Helper()
	s, err := NewStore(Options{
		Enabled:     true,
		MaxBindings: 2,
		CodeLength:  6,
		CodeFormat:  "number",
		Expiry:      5 * time.Minute,
	}, io)
	require.NoError(t, err)
	return s
}

func TestBindDirect(t *testing.T) {
	as := assert.New(t)
	io := newMemIO()
	s := testStore(t, io)

	as.Equal(BindOK, s.Bind(100, "Steve"))
	as.Equal(BindAlreadyBoundSelf, s.Bind(100, "steve"), "key is case-insensitive")
	as.Equal(BindAlreadyBoundOther, s.Bind(200, "STEVE"))

	as.True(s.IsBound("Steve"))
	owner, ok := s.Owner("steve")
	as.True(ok)
	as.Equal(int64(100), owner)
	as.Equal(int64(100), io.records["steve"], "persisted key is lowercase")
}

func TestBindLimit(t *testing.T) {
	as := assert.New(t)
	s := testStore(t, newMemIO())

	as.Equal(BindOK, s.Bind(100, "one"))
	as.Equal(BindOK, s.Bind(100, "two"))
	as.Equal(BindLimitExceeded, s.Bind(100, "three"))
	as.Equal(BindOK, s.Bind(200, "three"), "limit is per external account")

	as.Equal([]string{"one", "two"}, s.BindingsOf(100))
}

func TestBindIOFailureLeavesNoState(t *testing.T) {
	as := assert.New(t)
	io := newMemIO()
	s := testStore(t, io)

	io.failSave = true
	as.Equal(BindIOFailure, s.Bind(100, "Steve"))
	as.False(s.IsBound("Steve"))

	io.failSave = false
	as.Equal(BindOK, s.Bind(100, "Steve"), "retry after IO recovery succeeds")
}

func TestVerifyFlow(t *testing.T) {
	as := assert.New(t)
	s := testStore(t, newMemIO())

	var boundGame string
	var boundID int64
	s.OnBound = func(gameID string, externalID int64) {
		boundGame = gameID
		boundID = externalID
	}

	code, expiresAt := s.RequestVerification(100, "Steve")
	as.Len(code, 6)
	as.True(expiresAt.After(time.Now()))

	as.Equal(SubmitMismatch, s.SubmitVerification("Steve", "WRONG!"))
	as.Equal(SubmitOK, s.SubmitVerification("steve", code), "retry with correct code after mismatch")
	as.Equal(SubmitNoPending, s.SubmitVerification("Steve", code), "code is consumed on success")

	as.True(s.IsBound("Steve"))
	as.Equal("steve", boundGame)
	as.Equal(int64(100), boundID)
}

func TestVerifyExpiry(t *testing.T) {
	as := assert.New(t)
	s := testStore(t, newMemIO())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	code, _ := s.RequestVerification(100, "Steve")

	now = base.Add(5*time.Minute + time.Second)
	as.Equal(SubmitExpired, s.SubmitVerification("Steve", code))
	as.Equal(SubmitNoPending, s.SubmitVerification("Steve", code), "expired request is discarded")
}

func TestVerifyOverwritesPending(t *testing.T) {
	as := assert.New(t)
	s := testStore(t, newMemIO())

	old, _ := s.RequestVerification(100, "Steve")
	fresh, _ := s.RequestVerification(200, "Steve")

	if old != fresh {
		as.Equal(SubmitMismatch, s.SubmitVerification("Steve", old), "stale code no longer matches")
	}
	as.Equal(SubmitOK, s.SubmitVerification("Steve", fresh))

	owner, _ := s.Owner("Steve")
	as.Equal(int64(200), owner, "latest requester wins")
}

func TestVerifyIOFailureConsumesPending(t *testing.T) {
	as := assert.New(t)
	io := newMemIO()
	s := testStore(t, io)

	code, _ := s.RequestVerification(100, "Steve")

	io.failSave = true
	as.Equal(SubmitIOFailure, s.SubmitVerification("Steve", code))

	io.failSave = false
	as.Equal(SubmitNoPending, s.SubmitVerification("Steve", code),
		"matching attempt consumes the request even when persistence fails")
	as.False(s.IsBound("Steve"))
}

func TestUnbind(t *testing.T) {
	as := assert.New(t)
	s := testStore(t, newMemIO())

	as.Equal(UnbindNotBound, s.Unbind(100, "Steve"))

	as.Equal(BindOK, s.Bind(100, "Steve"))
	as.Equal(UnbindNotOwner, s.Unbind(200, "Steve"))
	as.Equal(UnbindOK, s.Unbind(100, "STEVE"))
	as.False(s.IsBound("Steve"))
}

func TestIsBoundBypassWhenDisabled(t *testing.T) {
	as := assert.New(t)
	s, err := NewStore(Options{Enabled: false}, newMemIO())
	require.NoError(t, err)

	as.True(s.IsBound("anyone"), "disabled whitelist never blocks")
}

func TestStoreLoadsExistingRecords(t *testing.T) {
	as := assert.New(t)
	io := newMemIO()
	io.records["steve"] = 100

	s := testStore(t, io)
	as.True(s.IsBound("Steve"))
	owner, ok := s.Owner("steve")
	as.True(ok)
	as.Equal(int64(100), owner)
}
