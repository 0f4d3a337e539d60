package sqlstore

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pac-chat/backend/internal/store"
	"github.com/zhouzirui/pac-chat/backend/internal/store/storetest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{Driver: DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openSQLite(t) })
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(Config{Driver: DriverPostgres})
	require.Error(t, err)
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	require.Equal(t, "file::memory:?_pragma=foreign_keys(1)", sqliteDSN(""))
	require.Equal(t, "chat.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("chat.db?_pragma=busy_timeout(5000)"))
	require.Equal(t, "chat.db?_pragma=foreign_keys(0)", sqliteDSN("chat.db?_pragma=foreign_keys(0)"))
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `50\% off\_now\\`, escapeLike(`50% off_now\`))
}

func TestClassifyNetworkErrorIsUnavailable(t *testing.T) {
	err := classify("listChats", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	require.ErrorIs(t, err, store.ErrRemoteUnavailable)

	err = classify("listChats", errors.New("syntax error"))
	require.NotErrorIs(t, err, store.ErrRemoteUnavailable)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, "listChats", se.Op)
}
