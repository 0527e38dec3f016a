package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotWithdrawPayload(t *testing.T) {
	b, err := NewRobotWithdrawTask(12, -3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"room_id":12,"robot_id":-3}`, string(b))

	p, err := ParseRobotWithdrawPayload(b)
	require.NoError(t, err)
	assert.Equal(t, RobotWithdrawPayload{RoomID: 12, RobotID: -3}, p)

	_, err = ParseRobotWithdrawPayload([]byte(`{"room_id":12,"robot_id":3}`))
	assert.Error(t, err, "real user id is not a robot")
	_, err = ParseRobotWithdrawPayload([]byte(`not json`))
	assert.Error(t, err)
}

func TestRoomFullPayload(t *testing.T) {
	_, err := ParseRoomFullPayload([]byte(`{"room_id":0}`))
	assert.Error(t, err)

	b, err := NewRoomFullTask(7)
	require.NoError(t, err)
	p, err := ParseRoomFullPayload(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.RoomID)
}

func TestTaskIDs(t *testing.T) {
	assert.Equal(t, "robot-withdraw:12:-3", WithdrawTaskID(12, -3))
	assert.Equal(t, "room-full:7", RoomFullTaskID(7))
}
