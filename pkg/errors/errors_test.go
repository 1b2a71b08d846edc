package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("scoring failed", map[string]interface{}{"customer_id": "c-1"})

	assert.Equal(t, "scoring failed", err.Error())
	assert.Equal(t, "c-1", err.GetFields()["customer_id"])
	assert.Contains(t, err.Location(), "errors_test.go:")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	base := fmt.Errorf("dial tcp: refused")
	err := Wrap(base, "load sessions")

	assert.Equal(t, "load sessions: dial tcp: refused", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, base, errors.Unwrap(err))
}

func TestWithFieldDoesNotMutateReceiver(t *testing.T) {
	base := New("bad weight")
	extended := base.WithField("weight", 1.5).WithFields(map[string]interface{}{"name": "voice"})

	assert.Empty(t, base.GetFields())
	assert.Equal(t, 1.5, extended.GetFields()["weight"])
	assert.Equal(t, "voice", extended.GetFields()["name"])

	coded := extended.WithCode("CONFIG")
	assert.Equal(t, "CONFIG", coded.GetCode())
	assert.Empty(t, extended.GetCode())
}

func TestCollectorUnavailable(t *testing.T) {
	cause := fmt.Errorf("redis: connection refused")
	err := NewCollectorUnavailable("voice", cause)

	assert.True(t, errors.Is(err, ErrCollectorUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrMalformedRecord))
	assert.Equal(t, CodeCollectorUnavailable, GetErrorCode(err))
	assert.Equal(t, "voice", GetErrorFields(err)["modality"])
	assert.Contains(t, err.Error(), "redis: connection refused")
	assert.Equal(t, cause, err.Cause())
}

func TestMalformedRecord(t *testing.T) {
	err := NewMalformedRecord("behavior", "engagement score 1.7 outside [0,1]")

	assert.True(t, IsErrorType(err, ErrMalformedRecord))
	assert.Equal(t, CodeMalformedRecord, err.GetCode())
	assert.Equal(t, "malformed behavior record: engagement score 1.7 outside [0,1]: malformed record", err.Error())
}

func TestUnsupportedAnalysisAndFatal(t *testing.T) {
	unsupported := NewUnsupportedAnalysis("churn")
	assert.True(t, errors.Is(unsupported, ErrUnsupportedAnalysis))
	assert.Equal(t, "churn", unsupported.GetFields()["analysis_type"])

	fatal := NewFatal("c-9", fmt.Errorf("panic: index out of range"))
	wrapped := fmt.Errorf("batch: %w", fatal)
	require.True(t, errors.Is(wrapped, ErrFatal))
	assert.Equal(t, CodeFatal, GetErrorCode(wrapped))
	assert.Equal(t, "c-9", GetErrorFields(wrapped)["customer_id"])
}

func TestAsJSON(t *testing.T) {
	err := NewNotFound("customer not found", map[string]interface{}{"customer_id": "c-2"})
	out := err.AsJSON()

	assert.Equal(t, CodeNotFound, out["code"])
	assert.Equal(t, "customer not found: resource not found", out["message"])
	assert.NotEmpty(t, out["location"])
	assert.Equal(t, map[string]interface{}{"customer_id": "c-2"}, out["context"])

	var nilErr *Error
	assert.Nil(t, nilErr.AsJSON())
	assert.Equal(t, "", nilErr.Error())
}
