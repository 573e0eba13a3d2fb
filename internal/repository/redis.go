package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

const (
	redisOpenCallsKey = "calls:open"

	fieldID          = "id"
	fieldPropertyID  = "property_id"
	fieldStatus      = "status"
	fieldOffer       = "offer"
	fieldAnswer      = "answer"
	fieldSharedLocks = "shared_locks"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

const terminalStatusesLua = `local terminal = {ended=true, missed=true, declined=true, timeout=true, failed=true}
`

// KEYS: call hash, open set. ARGV: status, offer, answer, shared locks, updated at, id.
var updateCallScript = redis.NewScript(terminalStatusesLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'not_found' end
local status = redis.call('HGET', KEYS[1], 'status')
if terminal[status] then
  if ARGV[1] == status and ARGV[2] == '' and ARGV[3] == '' and ARGV[4] == '' then return 'noop' end
  return 'terminal'
end
if ARGV[2] ~= '' then
  local cur = redis.call('HGET', KEYS[1], 'offer')
  if cur and cur ~= ARGV[2] then return 'offer_set' end
end
if ARGV[3] ~= '' then
  local cur = redis.call('HGET', KEYS[1], 'answer')
  if cur and cur ~= ARGV[3] then return 'answer_set' end
end
if ARGV[1] ~= '' then
  redis.call('HSET', KEYS[1], 'status', ARGV[1])
  if terminal[ARGV[1]] then redis.call('SREM', KEYS[2], ARGV[6]) end
end
if ARGV[2] ~= '' then redis.call('HSET', KEYS[1], 'offer', ARGV[2]) end
if ARGV[3] ~= '' then redis.call('HSET', KEYS[1], 'answer', ARGV[3]) end
if ARGV[4] ~= '' then redis.call('HSET', KEYS[1], 'shared_locks', ARGV[4]) end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[5])
return 'ok'
`)

// KEYS: call hash, candidate list. ARGV: entry, updated at.
var appendCandidateScript = redis.NewScript(terminalStatusesLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then return 'not_found' end
local status = redis.call('HGET', KEYS[1], 'status')
if terminal[status] then return 'terminal' end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 'ok'
`)

// RedisCallRepository keeps each call as a hash plus a candidate list and
// announces every mutation on a per-call pub/sub channel. Subscribers re-read
// the full document on each announcement.
type RedisCallRepository struct {
	client *redis.Client
}

func NewRedisCallRepository(client *redis.Client) *RedisCallRepository {
	return &RedisCallRepository{client: client}
}

func callKey(id string) string       { return "call:" + id }
func candidatesKey(id string) string { return "call:" + id + ":ice" }
func changedChannel(id string) string {
	return "call:" + id + ":changed"
}

func (r *RedisCallRepository) Create(ctx context.Context, call *domain.CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if call.PropertyID == "" {
		return ErrPropertyIDMissing
	}
	if call.ID == "" {
		call.ID = uuid.New().String()
	}

	fields := map[string]any{
		fieldID:         call.ID,
		fieldPropertyID: call.PropertyID,
		fieldStatus:     string(call.Status),
		fieldCreatedAt:  call.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:  call.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if call.Offer != nil {
		raw, err := json.Marshal(domain.CopyDescription(call.Offer))
		if err != nil {
			return err
		}
		fields[fieldOffer] = string(raw)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, callKey(call.ID), fields)
		for _, entry := range call.IceCandidates {
			raw, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, candidatesKey(call.ID), string(raw))
		}
		if !call.Status.IsTerminal() {
			pipe.SAdd(ctx, redisOpenCallsKey, call.ID)
		}
		pipe.Publish(ctx, changedChannel(call.ID), call.ID)
		return nil
	})
	return err
}

func (r *RedisCallRepository) Get(ctx context.Context, id string) (*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		hashCmd *redis.StringStringMapCmd
		listCmd *redis.StringSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, callKey(id))
		listCmd = pipe.LRange(ctx, candidatesKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	fields, err := hashCmd.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrCallNotFound
	}
	rawCandidates, err := listCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	return decodeCall(fields, rawCandidates)
}

func (r *RedisCallRepository) Update(ctx context.Context, id string, patch domain.CallPatch) (*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := make([]any, 6)
	args[0] = ""
	if patch.Status != nil {
		args[0] = string(*patch.Status)
	}
	var err error
	if args[1], err = encodeDescription(patch.Offer); err != nil {
		return nil, err
	}
	if args[2], err = encodeDescription(patch.Answer); err != nil {
		return nil, err
	}
	args[3] = ""
	if patch.SharedLocks != nil {
		raw, err := json.Marshal(patch.SharedLocks)
		if err != nil {
			return nil, err
		}
		args[3] = string(raw)
	}
	args[4] = time.Now().UTC().Format(time.RFC3339Nano)
	args[5] = id

	res, err := updateCallScript.Run(ctx, r.client, []string{callKey(id), redisOpenCallsKey}, args...).Text()
	if err != nil {
		return nil, err
	}
	switch res {
	case "ok":
		if err := r.client.Publish(ctx, changedChannel(id), id).Err(); err != nil {
			return nil, err
		}
	case "noop":
	default:
		return nil, scriptError(res)
	}

	return r.Get(ctx, id)
}

func (r *RedisCallRepository) AppendCandidate(ctx context.Context, id string, entry domain.IceCandidateEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	res, err := appendCandidateScript.Run(ctx, r.client,
		[]string{callKey(id), candidatesKey(id)},
		string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return err
	}
	if res != "ok" {
		return scriptError(res)
	}
	return r.client.Publish(ctx, changedChannel(id), id).Err()
}

func (r *RedisCallRepository) Subscribe(ctx context.Context, id string) (<-chan *domain.CallRecord, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	subCtx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(subCtx, changedChannel(id))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, nil, err
	}

	// Read after subscribing so no mutation can fall between the two.
	initial, err := r.Get(subCtx, id)
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, nil, err
	}

	sub := newSnapshotSub()
	sub.push(initial)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			_ = pubsub.Close()
			sub.close()
		})
	}

	go func() {
		defer cancel()
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				call, err := r.Get(subCtx, id)
				if err != nil {
					continue
				}
				sub.push(call)
			}
		}
	}()

	return sub.ch, cancel, nil
}

func (r *RedisCallRepository) ListOpen(ctx context.Context) ([]*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, redisOpenCallsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*domain.CallRecord, 0, len(ids))
	for _, id := range ids {
		call, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrCallNotFound) {
				r.client.SRem(ctx, redisOpenCallsKey, id)
				continue
			}
			return nil, err
		}
		if call.Status.IsTerminal() {
			continue
		}
		result = append(result, call)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func scriptError(res string) error {
	switch res {
	case "not_found":
		return ErrCallNotFound
	case "terminal":
		return ErrCallTerminal
	case "offer_set":
		return ErrOfferAlreadySet
	case "answer_set":
		return ErrAnswerAlreadySet
	default:
		return fmt.Errorf("unexpected call store result %q", res)
	}
}

func encodeDescription(d *webrtc.SessionDescription) (string, error) {
	if d == nil {
		return "", nil
	}
	raw, err := json.Marshal(domain.CopyDescription(d))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeCall(fields map[string]string, rawCandidates []string) (*domain.CallRecord, error) {
	call := &domain.CallRecord{
		ID:            fields[fieldID],
		PropertyID:    fields[fieldPropertyID],
		Status:        domain.CallStatus(fields[fieldStatus]),
		IceCandidates: make([]domain.IceCandidateEntry, 0, len(rawCandidates)),
	}

	if raw := fields[fieldOffer]; raw != "" {
		var offer webrtc.SessionDescription
		if err := json.Unmarshal([]byte(raw), &offer); err != nil {
			return nil, fmt.Errorf("decode offer: %w", err)
		}
		call.Offer = &offer
	}
	if raw := fields[fieldAnswer]; raw != "" {
		var answer webrtc.SessionDescription
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		call.Answer = &answer
	}
	if raw := fields[fieldSharedLocks]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &call.SharedLocks); err != nil {
			return nil, fmt.Errorf("decode shared locks: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err == nil {
		call.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt]); err == nil {
		call.UpdatedAt = t
	}

	for _, raw := range rawCandidates {
		var entry domain.IceCandidateEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		call.IceCandidates = append(call.IceCandidates, entry)
	}

	return call, nil
}
