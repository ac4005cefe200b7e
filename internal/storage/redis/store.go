// Package redis provides a networked Repository backed by a Redis
// server. Entries live as msgpack blobs under per-id keys; a timestamp
// zset orders them for listing and pruning, and per-field zsets index
// kind, family hash, correlation id and tags.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Store persists entries in Redis. All keys share a prefix so several
// stores can coexist in one database.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.Repository = (*Store)(nil)

// record is the wire form of an entry. Tags are kept in a separate set
// so AddTags never rewrites the blob.
type record struct {
	ID            int64              `json:"id"`
	Kind          string             `json:"kind"`
	TS            int64              `json:"ts"`
	CorrelationID string             `json:"correlationId"`
	FamilyHash    string             `json:"familyHash"`
	Payload       msgpack.RawMessage `json:"payload"`
}

// NewStore wraps an existing client. An empty prefix defaults to
// "spyglass".
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "spyglass"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *Store) entryKey(id int64) string {
	return s.key("entry:" + strconv.FormatInt(id, 10))
}

func (s *Store) tagsKey(id int64) string {
	return s.key("entry:" + strconv.FormatInt(id, 10) + ":tags")
}

// Save persists one entry and returns it with its assigned id.
func (s *Store) Save(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	saved, err := s.SaveBatch(ctx, []entry.Entry{e})
	if err != nil {
		return entry.Entry{}, err
	}
	return saved[0], nil
}

// SaveBatch persists entries in order. Ids are reserved with a single
// INCRBY so concurrent batches never interleave id ranges.
func (s *Store) SaveBatch(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error) {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("save entry %d: %w", i, err)
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	last, err := s.client.IncrBy(ctx, s.key("next_id"), int64(len(entries))).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve ids: %w", err)
	}
	first := last - int64(len(entries)) + 1

	saved := make([]entry.Entry, len(entries))
	pipe := s.client.Pipeline()
	for i, e := range entries {
		e.ID = first + int64(i)
		if err := s.queueEntry(ctx, pipe, e); err != nil {
			return nil, fmt.Errorf("save entry %d: %w", i, err)
		}
		saved[i] = e
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	return saved, nil
}

// queueEntry stages the writes for one entry on the pipeline: the blob,
// the ordering zset and every secondary index.
func (s *Store) queueEntry(ctx context.Context, pipe redis.Pipeliner, e entry.Entry) error {
	payload, err := marshal(e.Payload)
	if err != nil {
		return err
	}
	blob, err := marshal(record{
		ID:            e.ID,
		Kind:          string(e.Kind),
		TS:            e.Timestamp.UnixNano(),
		CorrelationID: e.CorrelationID,
		FamilyHash:    e.FamilyHash,
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	member := redis.Z{Score: float64(e.Timestamp.UnixNano()), Member: e.ID}
	pipe.Set(ctx, s.entryKey(e.ID), blob, 0)
	pipe.ZAdd(ctx, s.key("by_ts"), member)
	pipe.ZAdd(ctx, s.key("kind:"+string(e.Kind)), member)
	if e.CorrelationID != "" {
		pipe.ZAdd(ctx, s.key("corr:"+e.CorrelationID), member)
	}
	if e.FamilyHash != "" {
		pipe.ZAdd(ctx, s.key("family:"+e.FamilyHash), member)
	}
	if len(e.Tags) > 0 {
		pipe.SAdd(ctx, s.tagsKey(e.ID), toAnySlice(e.Tags)...)
		for _, tag := range e.Tags {
			pipe.ZAdd(ctx, s.key("tag:"+tag), member)
		}
	}
	return nil
}

// UpdateFamilyHash sets the family hash of a saved entry and moves it
// between family indexes.
func (s *Store) UpdateFamilyHash(ctx context.Context, id int64, hash string) error {
	rec, err := s.fetchRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("update family hash %d: %w", id, err)
	}
	old := rec.FamilyHash
	rec.FamilyHash = hash

	blob, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("update family hash %d: %w", id, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(id), blob, 0)
	if old != "" && old != hash {
		pipe.ZRem(ctx, s.key("family:"+old), id)
	}
	if hash != "" {
		pipe.ZAdd(ctx, s.key("family:"+hash), redis.Z{Score: float64(rec.TS), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update family hash %d: %w", id, err)
	}
	return nil
}

// AddTags attaches labels to a saved entry, ignoring duplicates.
func (s *Store) AddTags(ctx context.Context, id int64, tags []string) error {
	rec, err := s.fetchRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("add tags %d: %w", id, err)
	}
	if len(tags) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.tagsKey(id), toAnySlice(tags)...)
	for _, tag := range tags {
		pipe.ZAdd(ctx, s.key("tag:"+tag), redis.Z{Score: float64(rec.TS), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add tags %d: %w", id, err)
	}
	return nil
}

// Find returns the entry with the given id.
func (s *Store) Find(ctx context.Context, id int64) (entry.Entry, error) {
	rec, err := s.fetchRecord(ctx, id)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, err)
	}
	e, err := rec.toEntry()
	if err != nil {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, err)
	}

	tags, err := s.client.SMembers(ctx, s.tagsKey(id)).Result()
	if err != nil {
		return entry.Entry{}, fmt.Errorf("find %d: load tags: %w", id, err)
	}
	if len(tags) > 0 {
		slices.Sort(tags)
		e.Tags = tags
	}
	return e, nil
}

// List returns entries matching q, newest first. The most selective
// indexed field picks the source zset; any remaining fields are
// filtered after decoding.
func (s *Store) List(ctx context.Context, q storage.Query) ([]entry.Entry, error) {
	source := s.key("by_ts")
	residual := q
	switch {
	case q.CorrelationID != "":
		source = s.key("corr:" + q.CorrelationID)
		residual.CorrelationID = ""
	case q.FamilyHash != "":
		source = s.key("family:" + q.FamilyHash)
		residual.FamilyHash = ""
	case q.Tag != "":
		source = s.key("tag:" + q.Tag)
		residual.Tag = ""
	case q.Kind != "":
		source = s.key("kind:" + string(q.Kind))
		residual.Kind = ""
	}

	max := "+inf"
	if !q.Before.IsZero() {
		max = "(" + strconv.FormatInt(q.Before.UnixNano(), 10)
	}
	ids, err := s.client.ZRevRangeByScore(ctx, source, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("entry:" + id)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	var out []entry.Entry
	for _, blob := range blobs {
		raw, ok := blob.(string)
		if !ok {
			continue
		}
		var rec record
		if err := unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		if !matches(rec, residual) {
			continue
		}
		e, err := rec.toEntry()
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b entry.Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	if err := s.attachTags(ctx, out); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// matches applies whatever query fields the source zset did not already
// satisfy. Tag filtering never lands here: a tag query always selects
// the tag zset.
func matches(rec record, q storage.Query) bool {
	if q.Kind != "" && rec.Kind != string(q.Kind) {
		return false
	}
	if q.FamilyHash != "" && rec.FamilyHash != q.FamilyHash {
		return false
	}
	if q.CorrelationID != "" && rec.CorrelationID != q.CorrelationID {
		return false
	}
	return true
}

func (s *Store) attachTags(ctx context.Context, entries []entry.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.SMembers(ctx, s.tagsKey(e.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	for i, cmd := range cmds {
		tags := cmd.Val()
		if len(tags) == 0 {
			continue
		}
		slices.Sort(tags)
		entries[i].Tags = tags
	}
	return nil
}

// Prune deletes entries stamped before the cutoff, clearing every
// index they appear in.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(before.UnixNano(), 10)
	ids, err := s.client.ZRangeByScore(ctx, s.key("by_ts"), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("entry:" + id)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	tagCmds := make([]*redis.StringSliceCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, id := range ids {
		tagCmds[i] = pipe.SMembers(ctx, s.key("entry:"+id+":tags"))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("prune: load tags: %w", err)
	}

	pipe = s.client.Pipeline()
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id

		pipe.Del(ctx, keys[i])
		pipe.Del(ctx, s.key("entry:"+id+":tags"))
		for _, tag := range tagCmds[i].Val() {
			pipe.ZRem(ctx, s.key("tag:"+tag), id)
		}

		raw, ok := blobs[i].(string)
		if !ok {
			continue
		}
		var rec record
		if err := unmarshal([]byte(raw), &rec); err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		pipe.ZRem(ctx, s.key("kind:"+rec.Kind), id)
		if rec.CorrelationID != "" {
			pipe.ZRem(ctx, s.key("corr:"+rec.CorrelationID), id)
		}
		if rec.FamilyHash != "" {
			pipe.ZRem(ctx, s.key("family:"+rec.FamilyHash), id)
		}
	}
	removed := pipe.ZRem(ctx, s.key("by_ts"), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return removed.Val(), nil
}

func (s *Store) fetchRecord(ctx context.Context, id int64) (record, error) {
	blob, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return record{}, storage.ErrNotFound
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := unmarshal(blob, &rec); err != nil {
		return record{}, err
	}
	return rec, nil
}

func (rec record) toEntry() (entry.Entry, error) {
	kind := entry.Kind(rec.Kind)
	p, err := entry.DecodePayload(kind, rec.Payload, unmarshal)
	if err != nil {
		return entry.Entry{}, err
	}
	return entry.Entry{
		ID:            rec.ID,
		Kind:          kind,
		Payload:       p,
		Timestamp:     time.Unix(0, rec.TS).UTC(),
		CorrelationID: rec.CorrelationID,
		FamilyHash:    rec.FamilyHash,
	}, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
