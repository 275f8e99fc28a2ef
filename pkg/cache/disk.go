package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/spf13/afero"
)

// maxEntrySize bounds the decoded body of one entry file.
const maxEntrySize = 1 << 30

// errCorrupt marks an unreadable entry file; DiskStore reports it as a miss.
var errCorrupt = errors.New("corrupt cache entry")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// DiskStore persists entries below a directory as {dir}/{key[:2]}/{key}.entry.
// An entry file is a compression tag byte, the uvarint length of the CBOR body,
// then the (possibly compressed) body.
type DiskStore struct {
	fs          afero.Fs
	dir         string
	compression Compression
	tmpSeq      atomic.Uint64
}

// NewDiskStore returns a store rooted at dir, creating it if needed.
func NewDiskStore(fs afero.Fs, dir string, compression Compression) (*DiskStore, error) {
	if err := fs.MkdirAll(dir, fileutil.ReadWriteExecuteUserReadExecuteOthers); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &DiskStore{fs: fs, dir: dir, compression: compression}, nil
}

func (s *DiskStore) path(key string) string {
	prefix := key
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(s.dir, prefix, key+".entry")
}

// Get implements Store. Corrupt entries are reported as misses.
func (s *DiskStore) Get(key string) (*Entry, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	e, err := decodeEntry(data)
	if err != nil {
		log.Debug("Ignoring unreadable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return e, true, nil
}

// Put implements Store. The entry file is written to a temporary name first and
// renamed into place.
func (s *DiskStore) Put(key string, e *Entry) error {
	data, err := encodeEntry(e, s.compression.tagFor(e.Format))
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	final := s.path(key)
	tmp := final + ".tmp" + strconv.FormatUint(s.tmpSeq.Add(1), 10)
	if err := fileutil.WriteFileAll(s.fs, tmp, data); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to commit cache entry %s: %w", key, err)
	}
	return nil
}

func encodeEntry(e *Entry, tag byte) ([]byte, error) {
	body, err := encMode.Marshal(e)
	if err != nil {
		return nil, err
	}
	payload, tag, err := compress(body, tag)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	out = append(out, tag)
	out = binary.AppendUvarint(out, uint64(len(body)))
	return append(out, payload...), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	if len(data) < 2 {
		return nil, errCorrupt
	}
	tag := data[0]
	size, n := binary.Uvarint(data[1:])
	if n <= 0 || size > maxEntrySize {
		return nil, errCorrupt
	}
	body, err := decompress(data[1+n:], tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	var e Entry
	if err := decMode.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	if !e.Valid() {
		return nil, fmt.Errorf("%w: digest mismatch", errCorrupt)
	}
	return &e, nil
}
