package rxdb

import (
	"bytes"
	"fmt"
	"time"

	"github.com/andreyvit/rxdb/cjson"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// schemaStore keeps the last known payload type of each namespace in a Bolt
// file, so a restarted client starts with the schema it had.
type schemaStore struct {
	bdb *bbolt.DB
}

var payloadTypesBucket = []byte("payload_types")

func openSchemaStore(path string, isTesting bool) (*schemaStore, error) {
	bopt := new(bbolt.Options)
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if isTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("schema store: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(payloadTypesBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("schema store: %w", err)
	}
	return &schemaStore{bdb: bdb}, nil
}

func (s *schemaStore) Close() error {
	return s.bdb.Close()
}

func (s *schemaStore) loadAll() ([]*cjson.PayloadType, error) {
	var result []*cjson.PayloadType
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		return btx.Bucket(payloadTypesBucket).ForEach(func(k, v []byte) error {
			pt, err := decodePayloadType(v)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			result = append(result, pt)
			return nil
		})
	})
	return result, err
}

func (s *schemaStore) load(ns string) (*cjson.PayloadType, error) {
	var pt *cjson.PayloadType
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		raw := btx.Bucket(payloadTypesBucket).Get([]byte(ns))
		if raw == nil {
			return nil
		}
		var err error
		pt, err = decodePayloadType(raw)
		return err
	})
	return pt, err
}

// save stores pt unless the stored version is the same or newer. Reports
// whether anything was written.
func (s *schemaStore) save(pt *cjson.PayloadType) (bool, error) {
	raw, err := encodePayloadType(pt)
	if err != nil {
		return false, err
	}
	var saved bool
	err = s.bdb.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(payloadTypesBucket)
		key := []byte(pt.NamespaceName)
		if old := b.Get(key); old != nil {
			if bytes.Equal(old, raw) {
				return nil
			}
			oldPT, err := decodePayloadType(old)
			if err == nil && !pt.IsNewerThan(oldPT) {
				return nil
			}
		}
		saved = true
		return b.Put(key, raw)
	})
	return saved, err
}

func encodePayloadType(pt *cjson.PayloadType) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(pt)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload type of %s: %w", pt.NamespaceName, err)
	}
	return buf.Bytes(), nil
}

func decodePayloadType(raw []byte) (*cjson.PayloadType, error) {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	pt := new(cjson.PayloadType)
	err := dec.Decode(pt)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload type: %w", err)
	}
	seen := make(map[string]bool, len(pt.Tags))
	for _, tag := range pt.Tags {
		if seen[tag] {
			return nil, fmt.Errorf("duplicate tag %q in stored payload type of %s", tag, pt.NamespaceName)
		}
		seen[tag] = true
	}
	return pt.Init(), nil
}
