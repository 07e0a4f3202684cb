package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"messengerdb/pkg/logger"
)

// Pebble implements Client on a local pebble database. It stands in for
// the distributed store: each logical partition maps to a key prefix, and
// prefix iteration gives the sorted clustering order.
type Pebble struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) a pebble database at the given path.
func Open(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db, path: path}, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed", "path", p.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (p *Pebble) Ready() bool {
	return p != nil && p.db != nil
}

// rowKey joins partition and clustering key into the physical key. An
// empty clustering key addresses the partition's single row.
func rowKey(partition, clustering string) []byte {
	if clustering == "" {
		return []byte(partition)
	}
	return []byte(partition + ":" + clustering)
}

func (p *Pebble) check(ctx context.Context, partition string) error {
	if p.db == nil {
		return fmt.Errorf("%w: pebble not opened", ErrUnavailable)
	}
	if partition == "" {
		return fmt.Errorf("%w: empty partition", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Pebble) Put(ctx context.Context, partition, clustering string, value []byte) error {
	if err := p.check(ctx, partition); err != nil {
		return err
	}
	if err := p.db.Set(rowKey(partition, clustering), value, pebble.Sync); err != nil {
		logger.Error("store_put_failed", "partition", partition, "clustering", clustering, "error", err)
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Pebble) Get(ctx context.Context, partition, clustering string) ([]byte, error) {
	if err := p.check(ctx, partition); err != nil {
		return nil, err
	}
	v, closer, err := p.db.Get(rowKey(partition, clustering))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		logger.Error("store_get_failed", "partition", partition, "clustering", clustering, "error", err)
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

func (p *Pebble) Scan(ctx context.Context, partition, after string, limit int) ([]Row, error) {
	if err := p.check(ctx, partition); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	}
	prefix := []byte(partition + ":")
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: iter: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	// Seek strictly past the cursor position: clustering keys never
	// contain NUL, so prefix+after+"\x00" is the smallest key greater
	// than the cursor row.
	seek := prefix
	if after != "" {
		seek = append(append([]byte(nil), prefix...), after...)
		seek = append(seek, 0)
	}
	var out []Row
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, Row{
			Clustering: string(iter.Key()[len(prefix):]),
			Value:      append([]byte(nil), iter.Value()...),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (p *Pebble) Delete(ctx context.Context, partition, clustering string) error {
	if err := p.check(ctx, partition); err != nil {
		return err
	}
	if err := p.db.Delete(rowKey(partition, clustering), pebble.Sync); err != nil {
		logger.Error("store_delete_failed", "partition", partition, "clustering", clustering, "error", err)
		return fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	return nil
}
