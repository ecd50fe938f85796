package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FirestoreConfig selects the Firestore database to write to.
type FirestoreConfig struct {
	ProjectID       string
	DatabaseID      string // defaults to "(default)"
	CredentialsFile string // empty uses application default credentials
	Endpoint        string // optional, e.g. an emulator at http://localhost:8080/
}

// Firestore commits documents through the Firestore REST API.
type Firestore struct {
	docs   *firestore.ProjectsDatabasesDocumentsService
	parent string
}

// NewFirestore creates a Firestore-backed Store.
func NewFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	database := cfg.DatabaseID
	if database == "" {
		database = "(default)"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	svc, err := firestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new service: %w", err)
	}
	return &Firestore{
		docs:   svc.Projects.Databases.Documents,
		parent: fmt.Sprintf("projects/%s/databases/%s/documents", cfg.ProjectID, database),
	}, nil
}

// Create implements Store. The document id is assigned by the server.
func (f *Firestore) Create(ctx context.Context, collection string, payload json.RawMessage) (string, error) {
	fields, err := Fields(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	doc, err := f.docs.CreateDocument(f.parent, collection, &firestore.Document{Fields: fields}).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err)
	}
	return path.Base(doc.Name), nil
}

// classify marks client errors the server will never accept as rejections.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return fmt.Errorf("firestore create: %w", err)
}

// Fields converts a JSON object into Firestore document fields.
func Fields(payload json.RawMessage) (map[string]firestore.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	fields := make(map[string]firestore.Value, len(obj))
	for k, v := range obj {
		val, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = *val
	}
	return fields, nil
}

// toValue maps one decoded JSON value. Zero scalars are force-sent so that
// false, 0 and "" reach the server as typed values rather than as {}.
func toValue(v any) (*firestore.Value, error) {
	switch t := v.(type) {
	case nil:
		return &firestore.Value{NullValue: "NULL_VALUE"}, nil
	case bool:
		return &firestore.Value{BooleanValue: t, ForceSendFields: []string{"BooleanValue"}}, nil
	case string:
		return &firestore.Value{StringValue: t, ForceSendFields: []string{"StringValue"}}, nil
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			if n, err := t.Int64(); err == nil {
				return &firestore.Value{IntegerValue: n, ForceSendFields: []string{"IntegerValue"}}, nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return &firestore.Value{DoubleValue: f, ForceSendFields: []string{"DoubleValue"}}, nil
	case []any:
		arr := &firestore.ArrayValue{Values: make([]*firestore.Value, 0, len(t))}
		for i, e := range t {
			ev, err := toValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr.Values = append(arr.Values, ev)
		}
		return &firestore.Value{ArrayValue: arr}, nil
	case map[string]any:
		m := &firestore.MapValue{Fields: make(map[string]firestore.Value, len(t))}
		for k, e := range t {
			ev, err := toValue(e)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			m.Fields[k] = *ev
		}
		return &firestore.Value{MapValue: m}, nil
	}
	return nil, fmt.Errorf("unsupported JSON value %T", v)
}
