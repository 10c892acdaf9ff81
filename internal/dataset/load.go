package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/antoniostano/prefview/internal/conversation"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatJSONL   Format = "jsonl"
	FormatJSON    Format = "json"
)

// FormatFromName infers the file format from a path or URL extension.
func FormatFromName(name string) (Format, error) {
	p := name
	if u, err := url.Parse(name); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".parquet":
		return FormatParquet, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported dataset format for %q (expected .parquet, .jsonl or .json)", name)
	}
}

func LoadFile(filePath string) (*Dataset, error) {
	format, err := FormatFromName(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Load(data, format)
}

func Load(data []byte, format Format) (*Dataset, error) {
	var (
		records []Record
		err     error
	)
	switch format {
	case FormatParquet:
		records, err = decodeParquet(data)
	case FormatJSONL:
		records, err = decodeJSONL(data)
	case FormatJSON:
		records, err = decodeJSON(data)
	default:
		err = fmt.Errorf("unsupported dataset format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return New(records), nil
}

// jsonRecord keeps the conversations raw so malformed turns surface at
// display time instead of failing the whole load.
type jsonRecord struct {
	Source   string          `json:"source"`
	Prompt   string          `json:"prompt"`
	Chosen   json.RawMessage `json:"chosen"`
	Rejected json.RawMessage `json:"rejected"`
}

func (r jsonRecord) record() Record {
	return Record{Source: r.Source, Prompt: r.Prompt, Chosen: r.Chosen, Rejected: r.Rejected}
}

func decodeJSONL(data []byte) ([]Record, error) {
	s := bufio.NewScanner(bytes.NewReader(data))
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 64*1024*1024)
	var records []Record
	line := 0
	for s.Scan() {
		line++
		raw := bytes.TrimSpace(s.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r jsonRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode jsonl line %d: %w", line, err)
		}
		records = append(records, r.record())
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return records, nil
}

func decodeJSON(data []byte) ([]Record, error) {
	var rows []jsonRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode json dataset: %w", err)
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

type parquetTurn struct {
	Content *string `parquet:"content,optional"`
	Role    string `parquet:"role,optional"`
}

type parquetRecord struct {
	Source   string        `parquet:"source,optional"`
	Prompt   string        `parquet:"prompt,optional"`
	Chosen   []parquetTurn `parquet:"chosen,list"`
	Rejected []parquetTurn `parquet:"rejected,list"`
}

func decodeParquet(data []byte) ([]Record, error) {
	rows, err := parquet.Read[parquetRecord](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet dataset: %w", err)
	}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		chosen, err := encodeTurns(row.Chosen)
		if err != nil {
			return nil, fmt.Errorf("row %d chosen: %w", i, err)
		}
		rejected, err := encodeTurns(row.Rejected)
		if err != nil {
			return nil, fmt.Errorf("row %d rejected: %w", i, err)
		}
		records = append(records, Record{
			Source:   row.Source,
			Prompt:   row.Prompt,
			Chosen:   chosen,
			Rejected: rejected,
		})
	}
	return records, nil
}

func encodeTurns(turns []parquetTurn) (json.RawMessage, error) {
	out := make([]conversation.Turn, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = conversation.DefaultRole
		}
		content := conversation.MissingContent
		if t.Content != nil {
			content = *t.Content
		}
		out = append(out, conversation.Turn{Role: role, Content: content})
	}
	return json.Marshal(out)
}
