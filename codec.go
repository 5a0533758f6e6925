package msgproj

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// MessageCodec converts between a message's structured form and its on-disk
// representation and maps message ids to file paths. Paths passed in and out
// are relative to the project's message directory.
type MessageCodec interface {
	ParseMessage(path string, raw []byte) (*Message, error)
	EncodeMessage(m *Message) ([]byte, error)
	// MessageIDFromPath derives the message id for a file path, or reports
	// false when the path does not belong to a message file.
	MessageIDFromPath(path string) (string, bool)
	PathFromMessageID(id string) string
}

// jsonCodec stores one message per {id}.json file. EncodeMessage produces a
// canonical form (variants sorted by language tag, two-space indent,
// trailing newline) so that byte equality of encodings can be used to detect
// no-op updates.
type jsonCodec struct{}

// NewJSONCodec returns the default JSON message codec.
func NewJSONCodec() MessageCodec { return jsonCodec{} }

func (jsonCodec) ParseMessage(path string, raw []byte) (*Message, error) {
	var m Message
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, &MessageParseError{Path: path, Err: err}
	}
	pathID, ok := jsonCodec{}.MessageIDFromPath(path)
	if !ok {
		return nil, &MessageParseError{Path: path, Err: fmt.Errorf("path does not map to a message id")}
	}
	if m.ID == "" {
		m.ID = pathID
	} else if m.ID != pathID {
		return nil, &MessageParseError{Path: path, Err: fmt.Errorf("id %q does not match path id %q", m.ID, pathID)}
	}
	seen := map[string]bool{}
	for _, v := range m.Variants {
		if v.LanguageTag == "" {
			return nil, &MessageParseError{Path: path, Err: fmt.Errorf("variant with empty language tag")}
		}
		if seen[v.LanguageTag] {
			return nil, &MessageParseError{Path: path, Err: fmt.Errorf("duplicate variant for language tag %q", v.LanguageTag)}
		}
		seen[v.LanguageTag] = true
	}
	return &m, nil
}

func (jsonCodec) EncodeMessage(m *Message) ([]byte, error) {
	canon := m.Clone()
	canon.sortVariants()
	if canon.Variants == nil {
		canon.Variants = []Variant{}
	}
	data, err := json.MarshalIndent(canon, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) MessageIDFromPath(p string) (string, bool) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	id, found := strings.CutSuffix(p, ".json")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

func (jsonCodec) PathFromMessageID(id string) string {
	return id + ".json"
}
