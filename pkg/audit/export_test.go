package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*Record {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return []*Record{
		{ID: 1, Timestamp: ts, EventID: "evt", Principal: "alice", ServiceID: "https://a.example.com", Status: logout.StatusSuccess},
		{ID: 2, Timestamp: ts, EventID: "evt", Principal: "alice", ServiceID: "https://b.example.com", Status: logout.StatusFailure,
			Properties: map[string]string{"error": "timeout"}},
	}
}

func TestEncode_CSV(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "2026-05-01T12:00:00Z", rows[1][1])
	assert.Equal(t, "timeout", rows[2][12])
}

func TestEncode_NDJSON(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, int64(2), rec.ID)
}

func TestEncode_DefaultsToJSON(t *testing.T) {
	data, err := Encode(sampleRecords(), "xml")
	require.NoError(t, err)

	var recs []Record
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 2)
}
