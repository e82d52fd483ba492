package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zlnvch/canvasync/models"
	"github.com/zlnvch/canvasync/presence"
)

// RedisCanvasCache backs both the presence registry and the snapshot cache.
type RedisCanvasCache struct {
	client      redis.UniversalClient
	staleAfter  time.Duration
	snapshotTTL time.Duration
	now         func() time.Time
}

func NewRedisCanvasCache(ctx context.Context, useTLS bool, endpoint string, staleAfter time.Duration, snapshotTTL time.Duration) (*RedisCanvasCache, error) {
	options := &redis.Options{Addr: endpoint}
	if useTLS {
		// AWS elasticache endpoints require TLS
		options.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisCanvasCacheWithClient(client, staleAfter, snapshotTTL), nil
}

func NewRedisCanvasCacheWithClient(client redis.UniversalClient, staleAfter time.Duration, snapshotTTL time.Duration) *RedisCanvasCache {
	if staleAfter <= 0 {
		staleAfter = presence.DefaultStaleAfter
	}
	return &RedisCanvasCache{
		client:      client,
		staleAfter:  staleAfter,
		snapshotTTL: snapshotTTL,
		now:         time.Now,
	}
}

// Helper functions to generate Redis keys with hash tags for cluster compatibility
func buildPresenceKey(roomId string) string {
	return "presence:{" + roomId + "}"
}

func buildPresenceUserKey(roomId string, userId string) string {
	return "presence:{" + roomId + "}:user:" + userId
}

func buildSnapshotKey(roomId string) string {
	return "snapshot:{" + roomId + "}"
}

const (
	fieldUserName  = "userName"
	fieldUserColor = "userColor"
	fieldCursorX   = "cursorX"
	fieldCursorY   = "cursorY"
	fieldIsDrawing = "isDrawing"
	fieldLastSeen  = "lastSeen"
)

// Presence uses the same split index/data layout as the page cache did:
// a ZSet ("presence:{room}") scores user ids by last-seen millis, and a hash per
// user holds the record. Both expire after two staleness windows so abandoned
// rooms clean themselves up.
func (c *RedisCanvasCache) Join(ctx context.Context, roomId string, userId string, userName string, userColor string) error {
	now := c.now()
	return c.writePresence(ctx, roomId, userId, now,
		fieldUserName, userName,
		fieldUserColor, userColor,
		fieldCursorX, 0,
		fieldCursorY, 0,
		fieldIsDrawing, false,
		fieldLastSeen, now.UnixMilli(),
	)
}

func (c *RedisCanvasCache) UpdateCursor(ctx context.Context, update models.CursorUpdate) error {
	now := c.now()
	return c.writePresence(ctx, update.RoomId, update.UserId, now,
		fieldCursorX, update.X,
		fieldCursorY, update.Y,
		fieldIsDrawing, update.IsDrawing,
		fieldLastSeen, now.UnixMilli(),
	)
}

func (c *RedisCanvasCache) writePresence(ctx context.Context, roomId string, userId string, now time.Time, values ...any) error {
	key := buildPresenceKey(roomId)
	userKey := buildPresenceUserKey(roomId, userId)
	ttl := 2 * c.staleAfter

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, userKey, values...)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: userId})
	pipe.Expire(ctx, userKey, ttl)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCanvasCache) Leave(ctx context.Context, roomId string, userId string) error {
	pipe := c.client.Pipeline()
	pipe.ZRem(ctx, buildPresenceKey(roomId), userId)
	pipe.Del(ctx, buildPresenceUserKey(roomId, userId))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCanvasCache) ListLive(ctx context.Context, roomId string) ([]models.Presence, error) {
	key := buildPresenceKey(roomId)
	now := c.now()
	cutoff := strconv.FormatInt(now.Add(-c.staleAfter).UnixMilli(), 10)

	// Drop anything at or past the window, then read what is left
	if err := c.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return nil, err
	}
	userIds, err := c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	if len(userIds) == 0 {
		return []models.Presence{}, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIds))
	for i, userId := range userIds {
		cmds[i] = pipe.HGetAll(ctx, buildPresenceUserKey(roomId, userId))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	live := make([]models.Presence, 0, len(userIds))
	for i, userId := range userIds {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue // hash expired before the index entry
		}
		p := presenceFromHash(roomId, userId, fields)
		if !presence.IsLive(p, now, c.staleAfter) {
			continue
		}
		live = append(live, p)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].UserId < live[j].UserId })
	return live, nil
}

func presenceFromHash(roomId string, userId string, fields map[string]string) models.Presence {
	x, _ := strconv.ParseFloat(fields[fieldCursorX], 64)
	y, _ := strconv.ParseFloat(fields[fieldCursorY], 64)
	drawing, _ := strconv.ParseBool(fields[fieldIsDrawing])
	lastSeen, _ := strconv.ParseInt(fields[fieldLastSeen], 10, 64)
	return models.Presence{
		RoomId:    roomId,
		UserId:    userId,
		UserName:  fields[fieldUserName],
		UserColor: fields[fieldUserColor],
		CursorX:   x,
		CursorY:   y,
		IsDrawing: drawing,
		LastSeen:  time.UnixMilli(lastSeen),
	}
}

func (c *RedisCanvasCache) PutSnapshot(ctx context.Context, roomId string, png []byte) error {
	return c.client.Set(ctx, buildSnapshotKey(roomId), png, c.snapshotTTL).Err()
}

func (c *RedisCanvasCache) GetSnapshot(ctx context.Context, roomId string) ([]byte, bool, error) {
	png, err := c.client.Get(ctx, buildSnapshotKey(roomId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return png, true, nil
}
