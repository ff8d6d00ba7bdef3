// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// Converter translates between local objects and wire records using the
// schema metadata. Conversion only touches declared fields and
// relationships; anything else on either side is ignored.
type Converter struct {
	store *store.Store
	meta  schema.Metadata
	zone  string
}

func NewConverter(st *store.Store, meta schema.Metadata, zone string) *Converter {
	return &Converter{store: st, meta: meta, zone: zone}
}

// ToRecord builds the wire record for an object. The caller restricts the
// payload to changed fields via CloneForSave when issuing partial saves;
// ToRecord itself always emits every declared field the object carries.
func (c *Converter) ToRecord(ctx context.Context, obj *models.Object) (*models.Record, error) {
	ent, ok := c.meta.Entity(obj.Entity)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", obj.Entity, ErrUnknownEntity)
	}

	rec := &models.Record{
		ID:     obj.RecordID(),
		Entity: obj.Entity,
		Fields: make(map[string]any, len(ent.Fields)),
	}
	if obj.Meta != nil {
		rec.Meta = *obj.Meta
	}

	for _, f := range ent.Fields {
		if v, present := obj.Fields[f.Name]; present {
			rec.Fields[f.Name] = v
		}
	}

	for _, rel := range ent.Relationships {
		targets := obj.Relations[rel.Name]
		if len(targets) == 0 {
			continue
		}
		ids := make([]models.RecordID, 0, len(targets))
		for _, localID := range targets {
			target, err := c.store.Object(ctx, localID)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("resolve relation %s of %s: %w", rel.Name, obj.RecordName, err)
			}
			ids = append(ids, target.RecordID())
		}
		if len(ids) > 0 {
			if rec.References == nil {
				rec.References = make(map[string][]models.RecordID, len(ent.Relationships))
			}
			rec.References[rel.Name] = ids
		}
	}

	return rec, nil
}

// ApplyRecord matches a fetched record to a local object, creating one when
// none exists, and applies the record's declared fields and system metadata.
// The object is staged on the session's store context; relationship
// resolution happens after the session commits, once created objects have
// local IDs.
//
// ApplyRecord is idempotent: applying the same record again finds the same
// object and rewrites identical values.
func (c *Converter) ApplyRecord(ctx context.Context, sess *PullSession, sc *store.Context, rec *models.Record) (*models.Object, error) {
	ent, ok := c.meta.Entity(rec.Entity)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", rec.Entity, ErrUnknownEntity)
	}

	obj := sess.Lookup(rec.ID.Name)
	created := false
	if obj == nil {
		existing, err := c.store.ObjectByRecordName(ctx, rec.ID.Name)
		switch {
		case err == nil:
			obj = existing
		case store.IsNotFound(err):
			obj = &models.Object{
				Entity:     rec.Entity,
				RecordName: rec.ID.Name,
				ZoneName:   rec.ID.Zone,
				OwnerName:  rec.ID.Owner,
				Scope:      rec.ID.Scope,
				Fields:     make(map[string]any, len(ent.Fields)),
			}
			created = true
		default:
			return nil, fmt.Errorf("match record %s: %w", rec.ID.Name, err)
		}
	}

	if obj.Fields == nil {
		obj.Fields = make(map[string]any, len(ent.Fields))
	}
	for _, f := range ent.Fields {
		raw, present := rec.Fields[f.Name]
		if !present {
			continue
		}
		v, err := normalizeValue(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", rec.Entity, f.Name, err)
		}
		obj.Fields[f.Name] = v
	}

	meta := rec.Meta
	obj.Meta = &meta

	// Server state is now authoritative; everything previously pending for
	// push has either landed or lost.
	obj.ChangedFields = nil

	if ent.Cacheable && obj.Cache == nil {
		obj.Cache = &models.CacheInfo{State: models.CacheStateRemote}
	}

	if created {
		sc.Insert(obj)
	} else {
		sc.Update(obj)
	}
	sess.Track(obj, created)

	for _, rel := range ent.Relationships {
		if targets := rec.References[rel.Name]; len(targets) > 0 {
			sess.AddReference(obj, rel.Name, targets)
		} else {
			sess.AddReference(obj, rel.Name, nil)
		}
	}

	return obj, nil
}

// normalizeValue coerces a JSON-decoded wire value into the canonical Go
// type for the declared field type.
func normalizeValue(ft schema.FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch ft {
	case schema.FieldString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case schema.FieldInt:
		switch v := raw.(type) {
		case float64:
			return int64(v), nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		}
		return nil, fmt.Errorf("expected integer, got %T", raw)
	case schema.FieldFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected float, got %T", raw)
	case schema.FieldBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return b, nil
	case schema.FieldTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("parse time: %w", err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("expected timestamp, got %T", raw)
	case schema.FieldBytes:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("decode bytes: %w", err)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected bytes, got %T", raw)
	}
	return raw, nil
}
