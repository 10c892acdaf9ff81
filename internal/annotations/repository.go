package annotations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Repository persists the whole annotation document. Load and Save always
// move the complete Store; there is no locking between processes, so the
// last writer wins.
type Repository interface {
	Load(ctx context.Context) (Store, error)
	Save(ctx context.Context, store Store) error
	Mode() string
	Close() error
}

// CorruptStoreError reports a persisted document that exists but cannot be
// read as an annotation store.
type CorruptStoreError struct {
	Source string
	Err    error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt annotation store %s: %v", e.Source, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

const documentSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"viewed": {
				"type": "array",
				"items": {"type": "integer", "minimum": 0, "maximum": 4294967295}
			},
			"comments": {
				"type": "object",
				"patternProperties": {"^(0|[1-9][0-9]{0,9})$": {"type": "string"}},
				"additionalProperties": false
			}
		},
		"additionalProperties": false
	}
}`

var documentSchema = mustSchema(documentSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("annotation document schema: %v", err))
	}
	return s
}

// decodeDocument validates data against the document schema and decodes it.
func decodeDocument(data []byte) (Store, error) {
	result, err := documentSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
	}

	store := Store{}
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return store, nil
}

func encodeDocument(store Store) ([]byte, error) {
	if store == nil {
		store = Store{}
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode annotations: %w", err)
	}
	return append(data, '\n'), nil
}
