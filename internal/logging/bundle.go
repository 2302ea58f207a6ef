package logging

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region format
// BundleFormat selects the on-disk encoding of a bundle.
type BundleFormat string

const (
	FormatBinary BundleFormat = "binary"
	FormatJSON   BundleFormat = "json"
)

// ParseBundleFormat accepts "binary"/"pb" and "json".
func ParseBundleFormat(s string) (BundleFormat, error) {
	switch s {
	case "binary", "pb", "":
		return FormatBinary, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown bundle format %q", s)
}

// #endregion format

// #region bundle
// Bundle builds {continuous: [...], states: [...]} with one struct per table row.
// Non-finite floats are written as the strings "Infinity", "-Infinity" and "NaN".
func (s *Session) Bundle() (*structpb.Struct, error) {
	states, err := tableRows(s.StatesTable())
	if err != nil {
		return nil, fmt.Errorf("states table: %w", err)
	}
	continuous, err := tableRows(s.ContinuousTable())
	if err != nil {
		return nil, fmt.Errorf("continuous table: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id": structpb.NewStringValue(s.ID),
		"label":      structpb.NewStringValue(s.Label),
		"states":     structpb.NewListValue(states),
		"continuous": structpb.NewListValue(continuous),
	}}, nil
}

// WriteBundle encodes the session bundle to path.
func (s *Session) WriteBundle(path string, format BundleFormat) error {
	b, err := s.Bundle()
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatJSON:
		data, err = protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(b)
	case FormatBinary:
		data, err = proto.Marshal(b)
	default:
		return fmt.Errorf("unknown bundle format %q", format)
	}
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// ReadBundle decodes a bundle written by WriteBundle.
func ReadBundle(path string, format BundleFormat) (*structpb.Struct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	b := &structpb.Struct{}
	switch format {
	case FormatJSON:
		err = protojson.Unmarshal(data, b)
	case FormatBinary:
		err = proto.Unmarshal(data, b)
	default:
		return nil, fmt.Errorf("unknown bundle format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	return b, nil
}

// Bundle builds the bundle of the log's current contents.
func (l *ExperimentLog) Bundle() (*structpb.Struct, error) {
	return l.Snapshot().Bundle()
}

// WriteBundle encodes the log's current contents to path.
func (l *ExperimentLog) WriteBundle(path string, format BundleFormat) error {
	return l.Snapshot().WriteBundle(path, format)
}

// #endregion bundle

// #region conversion
func tableRows(t Table) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(t.Rows))}
	for _, row := range t.Rows {
		fields := make(map[string]*structpb.Value, len(t.Columns))
		for i, c := range t.Columns {
			v, err := toValue(row[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", c, err)
			}
			fields[c] = v
		}
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{Fields: fields}))
	}
	return list, nil
}

func toValue(v any) (*structpb.Value, error) {
	enc, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	switch enc.kind {
	case kindNull:
		return structpb.NewNullValue(), nil
	case kindBool:
		return structpb.NewBoolValue(enc.num.Float64 != 0), nil
	case kindInt:
		return structpb.NewNumberValue(enc.num.Float64), nil
	case kindFloat:
		if !enc.num.Valid {
			return structpb.NewStringValue(nonFinite(enc.text.String)), nil
		}
		return structpb.NewNumberValue(enc.num.Float64), nil
	case kindString:
		return structpb.NewStringValue(enc.text.String), nil
	}
	decoded, err := decodeValue(enc.kind, enc.text)
	if err != nil {
		return nil, err
	}
	return structpb.NewValue(decoded)
}

func nonFinite(text string) string {
	switch text {
	case "+Inf":
		return "Infinity"
	case "-Inf":
		return "-Infinity"
	}
	return "NaN"
}

// #endregion conversion
