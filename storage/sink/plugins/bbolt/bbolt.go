package bbolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jrife/placement/storage/sink"
	"github.com/jrife/placement/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	DriverName = "bbolt"
)

var (
	headerBucket = []byte("header")
	headerKey    = []byte("columns")
	rowsBucket   = []byte("rows")
)

func Plugins() []sink.Plugin {
	return []sink.Plugin{
		&BBoltPlugin{},
	}
}

type BBoltPlugin struct {
}

func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

func (plugin *BBoltPlugin) NewSink(options sink.PluginOptions) (sink.Sink, error) {
	var config BBoltSinkConfig

	path, err := sink.PathOption(options)

	if err != nil {
		return nil, err
	}

	config.Path = path

	return New(config)
}

func (plugin *BBoltPlugin) NewTempSink() (sink.Sink, error) {
	return plugin.NewSink(sink.PluginOptions{
		"path": fmt.Sprintf("%s/bbolt-%s", os.TempDir(), uuid.MustUUID()),
	})
}

type BBoltSinkConfig struct {
	Path string
}

var _ sink.Sink = (*BBoltSink)(nil)

// BBoltSink stores rows in a bucket keyed by a big-endian
// sequence number so that a cursor walks them in append order
type BBoltSink struct {
	db *bolt.DB
}

func New(config BBoltSinkConfig) (*BBoltSink, error) {
	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("Could not open bbolt sink at %s: %s", config.Path, err.Error())
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		if _, err := txn.CreateBucketIfNotExists(headerBucket); err != nil {
			return err
		}

		_, err := txn.CreateBucketIfNotExists(rowsBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("Could not ensure buckets exist: %s", err.Error())
	}

	return &BBoltSink{db: db}, nil
}

func (bboltSink *BBoltSink) Append(header []string, rows [][]string) error {
	err := bboltSink.db.Update(func(txn *bolt.Tx) error {
		headers := txn.Bucket(headerBucket)
		existing := headers.Get(headerKey)

		if existing == nil {
			encoded, err := json.Marshal(header)

			if err != nil {
				return err
			}

			if err := headers.Put(headerKey, encoded); err != nil {
				return err
			}
		} else {
			var columns []string

			if err := json.Unmarshal(existing, &columns); err != nil {
				return fmt.Errorf("could not decode stored header: %s", err.Error())
			}

			if !sink.HeaderMatches(columns, header) {
				return sink.ErrHeaderMismatch
			}
		}

		bucket := txn.Bucket(rowsBucket)

		for _, row := range rows {
			seq, err := bucket.NextSequence()

			if err != nil {
				return err
			}

			encoded, err := json.Marshal(row)

			if err != nil {
				return err
			}

			if err := bucket.Put(sequenceKey(seq), encoded); err != nil {
				return err
			}
		}

		return nil
	})

	if err == bolt.ErrDatabaseNotOpen {
		return sink.ErrClosed
	}

	return err
}

func (bboltSink *BBoltSink) Read() ([][]string, error) {
	rows := [][]string{}

	err := bboltSink.db.View(func(txn *bolt.Tx) error {
		return txn.Bucket(rowsBucket).ForEach(func(k, v []byte) error {
			var row []string

			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("could not decode row %d: %s", binary.BigEndian.Uint64(k), err.Error())
			}

			rows = append(rows, row)

			return nil
		})
	})

	if err == bolt.ErrDatabaseNotOpen {
		return nil, sink.ErrClosed
	} else if err != nil {
		return nil, err
	}

	return rows, nil
}

func (bboltSink *BBoltSink) Close() error {
	return bboltSink.db.Close()
}

func (bboltSink *BBoltSink) Delete() error {
	path := bboltSink.db.Path()

	if err := bboltSink.Close(); err != nil {
		return fmt.Errorf("Could not close sink: %s", err.Error())
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("Could not remove path %s: %s", path, err.Error())
	}

	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	return key
}
