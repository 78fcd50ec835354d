package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/store/codec"
)

const (
	// DefaultHistoryKeep is how many timestamped snapshots survive pruning.
	DefaultHistoryKeep = 48

	latestName      = "latest.json"
	historyDir      = "history/"
	historyLayout   = "20060102T150405.000000000Z"
	snapshotContent = "application/json"
)

// SnapshotStore implements domain.LedgerStore on object storage. Every save
// writes a timestamped history object and then overwrites {prefix}latest.json.
type SnapshotStore struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	deleter domain.BlobDeleter
	codec   *codec.Codec
	prefix  string
	keep    int
	now     func() time.Time
	logger  *slog.Logger
}

// SnapshotStoreConfig configures a SnapshotStore.
type SnapshotStoreConfig struct {
	Prefix      string
	HistoryKeep int
	Codec       *codec.Codec
}

// NewSnapshotStore creates a store. deleter may be nil, which disables
// history pruning.
func NewSnapshotStore(w domain.BlobWriter, r domain.BlobReader, d domain.BlobDeleter, cfg SnapshotStoreConfig, logger *slog.Logger) *SnapshotStore {
	if cfg.HistoryKeep <= 0 {
		cfg.HistoryKeep = DefaultHistoryKeep
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New(nil)
	}
	return &SnapshotStore{
		writer:  w,
		reader:  r,
		deleter: d,
		codec:   cfg.Codec,
		prefix:  normalisePrefix(cfg.Prefix),
		keep:    cfg.HistoryKeep,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "s3_snapshot_store")),
	}
}

func normalisePrefix(p string) string {
	p = strings.TrimLeft(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (s *SnapshotStore) latestPath() string { return s.prefix + latestName }

func (s *SnapshotStore) historyPath(t time.Time) string {
	return s.prefix + historyDir + t.UTC().Format(historyLayout) + ".json"
}

// Load reads {prefix}latest.json. A missing object is domain.ErrNotFound.
func (s *SnapshotStore) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	body, err := s.reader.Get(ctx, s.latestPath())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LedgerSnapshot{}, domain.ErrNotFound
		}
		return domain.LedgerSnapshot{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("s3blob: read %s: %w", s.latestPath(), err)
	}
	snap, err := s.codec.Decode(data)
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("s3blob: decode %s: %w", s.latestPath(), err)
	}
	return snap, nil
}

// Save uploads the history object, then latest, then prunes old history.
// Pruning failures are logged only.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	data, err := s.codec.Encode(snap)
	if err != nil {
		return err
	}

	if err := s.put(ctx, s.historyPath(s.now()), data); err != nil {
		return err
	}
	if err := s.put(ctx, s.latestPath(), data); err != nil {
		return err
	}

	if err := s.prune(ctx); err != nil {
		s.logger.WarnContext(ctx, "s3blob: prune history failed", slog.String("error", err.Error()))
	}
	return nil
}

func (s *SnapshotStore) put(ctx context.Context, path string, data []byte) error {
	if int64(len(data)) > minPartSize {
		return s.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize)
	}
	return s.writer.Put(ctx, path, bytes.NewReader(data), snapshotContent)
}

// prune deletes the oldest history objects beyond the keep limit. History
// names sort chronologically.
func (s *SnapshotStore) prune(ctx context.Context) error {
	if s.deleter == nil {
		return nil
	}
	infos, err := s.reader.List(ctx, s.prefix+historyDir)
	if err != nil {
		return err
	}
	stale := staleHistory(infos, s.keep)
	var errs []error
	for _, path := range stale {
		if err := s.deleter.Delete(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(stale) > 0 {
		s.logger.DebugContext(ctx, "s3blob: pruned snapshot history", slog.Int("deleted", len(stale)-len(errs)))
	}
	return errors.Join(errs...)
}

// staleHistory returns the paths to delete so that keep objects remain.
func staleHistory(infos []domain.BlobInfo, keep int) []string {
	if len(infos) <= keep {
		return nil
	}
	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}
	sort.Strings(paths)
	return paths[:len(paths)-keep]
}

var _ domain.LedgerStore = (*SnapshotStore)(nil)
