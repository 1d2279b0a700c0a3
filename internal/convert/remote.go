package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/paulmach/orb"

	"github.com/JonMunkholm/cablemap/internal/core"
)

const DefaultRemoteTimeout = 60 * time.Second

// maxRemoteResponse caps how much of a converter response is read.
const maxRemoteResponse = 64 << 20

// RemoteConverter delegates multi-record documents (spreadsheet workbooks)
// to an external conversion service. The document is posted as multipart
// field "file"; the service answers with a JSON object whose keys are record
// labels in document order:
//
//	{"Sheet1": {"coordinates": [[lon, lat], ...], "properties": {...}}, ...}
type RemoteConverter struct {
	url    string
	client *http.Client
}

func NewRemoteConverter(url string, timeout time.Duration) *RemoteConverter {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteConverter{url: url, client: &http.Client{Timeout: timeout}}
}

type remoteRecord struct {
	Coordinates [][]float64    `json:"coordinates"`
	Properties  map[string]any `json:"properties"`
}

func (c *RemoteConverter) ConvertRecordSet(ctx context.Context, doc core.Document) ([]core.RawRecord, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", doc.Name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("build converter request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("converter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("converter returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return decodeRecordSet(io.LimitReader(resp.Body, maxRemoteResponse))
}

// decodeRecordSet reads the label-keyed object while keeping key order,
// which a plain map decode would lose.
func decodeRecordSet(r io.Reader) ([]core.RawRecord, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode converter response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode converter response: expected object")
	}

	var out []core.RawRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode converter response: %w", err)
		}
		label, _ := tok.(string)

		var rec remoteRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", label, err)
		}

		line := make(orb.LineString, 0, len(rec.Coordinates))
		for _, c := range rec.Coordinates {
			if len(c) < 2 {
				continue
			}
			line = append(line, orb.Point{c[0], c[1]})
		}
		if len(line) < 2 {
			continue
		}
		out = append(out, core.RawRecord{Label: label, Coordinates: line, Properties: rec.Properties})
	}
	return out, nil
}
