package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalFromBool(t *testing.T) {
	assert.Equal(t, ApprovalApproved, ApprovalFromBool(true))
	assert.Equal(t, ApprovalRejected, ApprovalFromBool(false))
}

func TestApprovalNullableBoolMapping(t *testing.T) {
	// pending maps to NULL in both directions
	v, err := ApprovalPending.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var a Approval
	require.NoError(t, a.Scan(nil))
	assert.True(t, a.IsPending())

	v, err = ApprovalApproved.Value()
	require.NoError(t, err)
	assert.Equal(t, true, v)

	require.NoError(t, a.Scan(true))
	assert.True(t, a.IsApproved())

	require.NoError(t, a.Scan(false))
	assert.True(t, a.IsRejected())
}

func TestApprovalScanTextBool(t *testing.T) {
	var a Approval
	require.NoError(t, a.Scan([]byte("t")))
	assert.True(t, a.IsApproved())

	require.NoError(t, a.Scan([]byte("f")))
	assert.True(t, a.IsRejected())

	assert.Error(t, a.Scan([]byte("maybe")))
	assert.Error(t, a.Scan(42))
}

func TestApprovalJSON(t *testing.T) {
	data, err := json.Marshal(ApprovalPending)
	require.NoError(t, err)
	assert.Equal(t, `"pending"`, string(data))

	var a Approval
	require.NoError(t, json.Unmarshal([]byte(`"rejected"`), &a))
	assert.True(t, a.IsRejected())

	assert.Error(t, json.Unmarshal([]byte(`"unknown"`), &a))
}
