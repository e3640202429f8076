package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Encode renders records as JSON, NDJSON or CSV. Unknown formats fall back to JSON.
func Encode(records []*Record, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportCSV(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	default:
		return json.MarshalIndent(records, "", "  ")
	}
}

func exportNDJSON(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID", "Timestamp", "EventID", "SessionHash", "Principal", "ServiceID", "TicketID",
		"RegisteredService", "Protocol", "LogoutURL", "LogoutType", "Status", "Error",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.EventID,
			rec.SessionHash,
			rec.Principal,
			rec.ServiceID,
			rec.TicketID,
			rec.RegisteredService,
			string(rec.Protocol),
			rec.LogoutURL,
			string(rec.LogoutType),
			string(rec.Status),
			rec.Properties["error"],
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
