package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/mpath/internal/mpath"
)

// AttrPublisher exposes aggregate disk identities as Redis hashes, one per
// disk, plus a set holding the names of all published disks.
type AttrPublisher struct {
	rdb    *redis.Client
	prefix string
}

var _ mpath.AttrPublisher = (*AttrPublisher)(nil)

// NewAttrPublisher creates a publisher writing keys under prefix
// ("mpath" when empty).
func NewAttrPublisher(client *Client, prefix string) *AttrPublisher {
	if prefix == "" {
		prefix = "mpath"
	}
	return &AttrPublisher{rdb: client.rdb, prefix: prefix}
}

// Key helpers
func (p *AttrPublisher) setKey() string {
	return fmt.Sprintf("%s:disks", p.prefix)
}

func (p *AttrPublisher) diskKey(name string) string {
	return fmt.Sprintf("%s:disk:%s", p.prefix, name)
}

// Publish writes the identity hash and adds the disk to the index set.
func (p *AttrPublisher) Publish(ctx context.Context, id mpath.Identity) error {
	key := p.diskKey(id.Name)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, identityFields(id, time.Now()))
		pipe.SAdd(ctx, p.setKey(), id.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish attributes for %s: %w", id.Name, err)
	}
	return nil
}

// Unpublish removes the identity hash and the index entry.
func (p *AttrPublisher) Unpublish(ctx context.Context, name string) error {
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.diskKey(name))
		pipe.SRem(ctx, p.setKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove attributes for %s: %w", name, err)
	}
	return nil
}

// List returns the names of all published disks.
func (p *AttrPublisher) List(ctx context.Context) ([]string, error) {
	return p.rdb.SMembers(ctx, p.setKey()).Result()
}

func identityFields(id mpath.Identity, now time.Time) map[string]any {
	fields := map[string]any{
		"name":         id.Name,
		"subsystem":    strconv.Itoa(id.Subsystem),
		"nsid":         strconv.FormatUint(uint64(id.NSID), 10),
		"uuid":         id.UUID,
		"paths":        strings.Join(id.Paths, ","),
		"published_at": now.UTC().Format(time.RFC3339),
	}
	if id.NGUID != "" {
		fields["nguid"] = id.NGUID
	}
	if id.EUI64 != "" {
		fields["eui"] = id.EUI64
	}
	return fields
}
