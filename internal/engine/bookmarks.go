package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/waypoint/internal/convert"
	"github.com/rendis/waypoint/pkg/schema"
)

// Bookmark is a resumption point owned by one execution context.
type Bookmark struct {
	ID               string          `json:"id"`
	Hash             string          `json:"hash"`
	ActivityTypeName string          `json:"activity_type_name"`
	ActivityID       string          `json:"activity_id"`
	OwnerID          string          `json:"owner_id"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
	Callback         string          `json:"callback,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DecodePayload coerces the bookmark payload into T. An empty payload yields
// the zero value.
func DecodePayload[T any](b Bookmark) (T, error) {
	if len(b.Payload) == 0 {
		var zero T
		return zero, nil
	}
	return convert.To[T](b.Payload)
}

// BookmarkOptions describe a bookmark to create.
type BookmarkOptions struct {
	Payload any
	// ActivityTypeName defaults to the owning activity's type.
	ActivityTypeName string
	CorrelationID    string
	// Callback is handed back to the owner's Resumer untouched.
	Callback string
}

// BookmarkRef selects bookmarks to resume, by id or by stimulus hash.
type BookmarkRef struct {
	ID   string
	Hash string
}

// Hash computes the stimulus hash of a bookmark: sha256 over the activity type
// name and the canonical JSON of the payload. Object keys are sorted, so a
// struct payload and its decoded map form hash identically.
func Hash(activityTypeName string, payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(activityTypeName))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalJSON(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("null"), nil
	}
	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "bookmark payload is not serializable: %s", err.Error()).WithCause(err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "bookmark payload is not valid JSON: %s", err.Error()).WithCause(err)
	}
	return json.Marshal(generic)
}

// createBookmark adds a bookmark owned by aec. A second bookmark with the same
// hash on the same owner replaces the first in place and keeps its id.
func (in *Instance) createBookmark(aec *ExecutionContext, opts BookmarkOptions) (Bookmark, error) {
	typeName := opts.ActivityTypeName
	if typeName == "" {
		typeName = aec.activity.Type()
	}
	payload, err := canonicalJSON(opts.Payload)
	if err != nil {
		return Bookmark{}, err
	}
	hash, err := Hash(typeName, payload)
	if err != nil {
		return Bookmark{}, err
	}
	if opts.Payload == nil {
		payload = nil
	}

	b := &Bookmark{
		ID:               uuid.New().String(),
		Hash:             hash,
		ActivityTypeName: typeName,
		ActivityID:       aec.activity.ID(),
		OwnerID:          aec.id,
		CorrelationID:    opts.CorrelationID,
		Callback:         opts.Callback,
		Payload:          payload,
		CreatedAt:        in.clock.Now(),
	}
	if b.CorrelationID == "" {
		b.CorrelationID = in.correlationID
	}

	for i, existing := range in.bookmarks {
		if existing.OwnerID == aec.id && existing.Hash == hash {
			b.ID = existing.ID
			b.CreatedAt = existing.CreatedAt
			in.bookmarks[i] = b
			return *b, nil
		}
	}
	in.bookmarks = append(in.bookmarks, b)
	in.record(schema.EventBookmarkCreated, aec.id, map[string]any{
		"bookmark_id": b.ID, "activity_type_name": typeName, "hash": hash,
	})
	return *b, nil
}

// Resume removes every bookmark matching ref and schedules the owners' resume
// work. Matching bookmarks are gone before any work runs, so a second resume
// of the same ref finds nothing. No match is NOT_FOUND and changes nothing.
func (in *Instance) Resume(ref BookmarkRef, input map[string]any) ([]Bookmark, error) {
	if ref.ID == "" && ref.Hash == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "bookmark id or hash is required")
	}
	var matched []*Bookmark
	kept := in.bookmarks[:0:0]
	for _, b := range in.bookmarks {
		if (ref.ID != "" && b.ID == ref.ID) || (ref.ID == "" && b.Hash == ref.Hash) {
			matched = append(matched, b)
			continue
		}
		kept = append(kept, b)
	}
	if len(matched) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no bookmark matches %s", ref).
			WithDetails(map[string]any{"instance_id": in.id})
	}
	in.bookmarks = kept

	if in.status == schema.InstanceStatusSuspended {
		_ = in.setStatus(schema.InstanceStatusRunning)
	}
	out := make([]Bookmark, 0, len(matched))
	for _, b := range matched {
		in.record(schema.EventBookmarkResumed, b.OwnerID, map[string]any{"bookmark_id": b.ID})
		in.enqueue(&WorkItem{Kind: WorkResume, TargetID: b.OwnerID, Bookmark: b, Input: input})
		out = append(out, *b)
	}
	return out, nil
}

func (r BookmarkRef) String() string {
	if r.ID != "" {
		return "id " + r.ID
	}
	return "hash " + r.Hash
}

// removeBookmarks drops every bookmark owned by a context in owners.
func (in *Instance) removeBookmarks(owners map[string]bool) {
	kept := in.bookmarks[:0:0]
	for _, b := range in.bookmarks {
		if owners[b.OwnerID] {
			in.record(schema.EventBookmarkRemoved, b.OwnerID, map[string]any{"bookmark_id": b.ID})
			continue
		}
		kept = append(kept, b)
	}
	in.bookmarks = kept
}

// Bookmarks returns the outstanding bookmarks in creation order.
func (in *Instance) Bookmarks() []Bookmark {
	out := make([]Bookmark, len(in.bookmarks))
	for i, b := range in.bookmarks {
		out[i] = *b
	}
	return out
}

func (in *Instance) hasBookmarks(aecID string) bool {
	for _, b := range in.bookmarks {
		if b.OwnerID == aecID {
			return true
		}
	}
	return false
}
