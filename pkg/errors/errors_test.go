package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New(ErrCodeRecordParse, "bad record")
	assert.Equal(t, "[PIPE_001] bad record", e.Error())

	withDetail := e.WithDetail("line 42")
	assert.Equal(t, "[PIPE_001] bad record: line 42", withDetail.Error())
	// Original is not mutated.
	assert.Equal(t, "", e.Detail)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeStreamIO, "read"))

	cause := fmt.Errorf("disk gone")
	wrapped := Wrap(cause, ErrCodeStreamIO, "reading shard")
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.True(t, IsCode(wrapped, ErrCodeStreamIO))
}

func TestWrap_PreservesCodeOnUnknown(t *testing.T) {
	inner := New(ErrCodeSpanNotFound, "no span")
	outer := Wrap(inner, CodeUnknown, "resolving answer")
	assert.Equal(t, ErrCodeSpanNotFound, outer.Code)
}

func TestIsCode_WalksChain(t *testing.T) {
	inner := New(ErrCodeMarkerStructure, "doc id 9 out of range")
	outer := Wrap(inner, ErrCodeStageFailed, "labels stage")

	assert.True(t, IsCode(outer, ErrCodeMarkerStructure))
	assert.True(t, IsCode(outer, ErrCodeStageFailed))
	assert.False(t, IsCode(outer, ErrCodeRecordParse))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeBudgetTooSmall, GetCode(New(ErrCodeBudgetTooSmall, "tiny")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeSpanNotFound, "gone")))
	assert.True(t, IsNotFound(New(ErrCodeNotFound, "missing")))
	assert.False(t, IsNotFound(New(ErrCodeTimeout, "slow")))
}
