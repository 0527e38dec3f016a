package setup

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN_Defaults(t *testing.T) {
	dsn := BuildDSN("root", "secret", "", "", "")
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/mahjong?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestInitDB_RequiresUser(t *testing.T) {
	_, err := InitDB("", "", "", "", "")
	assert.Error(t, err)
}

func TestMigrateDB_NilDB(t *testing.T) {
	assert.Error(t, MigrateDB(nil))
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := InitRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()
}

func TestInitRedis_WrongPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("correct")

	client, err := InitRedis(mr.Addr(), "wrong", 0)
	assert.Error(t, err)
	assert.Nil(t, client)
}
