package controlplane

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestJobRecordFromDispatch_TruncatesStdoutToLast4096Bytes(t *testing.T) {
	started := time.Now().UTC()
	longBody := strings.Repeat("x", 10000)

	rec := jobRecordFromDispatch(types.JobActionPush, "demo", "node-a", "abc123", started,
		dispatchOutcome{agentResult: agentResult{OK: true, ExitCode: 0}, StatusCode: 200, RawBody: longBody},
		nil, "req-1")

	assert.Len(t, rec.Stdout, jobHistoryTailBytes)
	assert.Equal(t, longBody[len(longBody)-jobHistoryTailBytes:], rec.Stdout)
}

func TestJobRecordFromDispatch_TruncatesTransportErrorStderrToLast4096Bytes(t *testing.T) {
	started := time.Now().UTC()
	longMsg := strings.Repeat("e", 10000)

	rec := jobRecordFromDispatch(types.JobActionPull, "demo", "node-a", "abc123", started,
		dispatchOutcome{}, errors.New(longMsg), "req-2")

	assert.Equal(t, "transport_error", rec.Status)
	assert.Len(t, rec.Stderr, jobHistoryTailBytes)
	assert.Equal(t, longMsg[len(longMsg)-jobHistoryTailBytes:], rec.Stderr)
}

func TestJobRecordFromDispatch_ShortBodyIsUnchanged(t *testing.T) {
	started := time.Now().UTC()

	rec := jobRecordFromDispatch(types.JobActionPush, "demo", "node-a", "abc123", started,
		dispatchOutcome{agentResult: agentResult{OK: true}, RawBody: "short body"}, nil, "req-3")

	assert.Equal(t, "short body", rec.Stdout)
}
