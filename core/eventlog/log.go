// Package eventlog persists committed ledger events under monotonically
// increasing sequence numbers so projections can resume from a cursor.
package eventlog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"nftledger/core/types"
	"nftledger/storage"
)

var (
	recordPrefix = []byte("log:rec:")
	headKey      = []byte("log:head")
)

var ErrUnsupportedValue = errors.New("eventlog: unsupported event value")

// KV is the storage surface records are staged into. Staging through the
// same overlay as the ledger state makes events and writes commit together.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
}

// Record is one persisted event.
type Record struct {
	Seq    uint64
	CallID string
	Time   int64
	Event  *types.Event
}

const (
	kindNil uint8 = iota
	kindBytes
	kindInt
	kindBool
	kindString
)

type encodedValue struct {
	Kind uint8
	Data []byte
}

type encodedRecord struct {
	CallID string
	Time   uint64
	Type   string
	Values []encodedValue
}

// Log reads committed records from a database.
type Log struct {
	db storage.Database
}

func New(db storage.Database) *Log {
	return &Log{db: db}
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

func readHead(kv KV) (uint64, error) {
	raw, err := kv.Get(headKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("eventlog: read head: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("eventlog: corrupt head (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Stage writes evts after the current head into kv and advances the head.
// It returns the sequence number of the last staged record.
func Stage(kv KV, callID string, at int64, evts []*types.Event) (uint64, error) {
	head, err := readHead(kv)
	if err != nil {
		return 0, err
	}
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		raw, err := encode(callID, at, evt)
		if err != nil {
			return 0, err
		}
		head++
		if err := kv.Put(recordKey(head), raw); err != nil {
			return 0, fmt.Errorf("eventlog: write record %d: %w", head, err)
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], head)
	if err := kv.Put(headKey, buf[:]); err != nil {
		return 0, fmt.Errorf("eventlog: write head: %w", err)
	}
	return head, nil
}

// Head returns the sequence number of the newest committed record.
func (l *Log) Head() (uint64, error) {
	return readHead(l.db)
}

// Read returns up to limit records with sequence numbers greater than after.
func (l *Log) Read(after uint64, limit int) ([]Record, error) {
	head, err := l.Head()
	if err != nil {
		return nil, err
	}
	if after >= head {
		return nil, nil
	}
	var out []Record
	for seq := after + 1; seq <= head && (limit <= 0 || len(out) < limit); seq++ {
		raw, err := l.db.Get(recordKey(seq))
		if err != nil {
			return nil, fmt.Errorf("eventlog: read record %d: %w", seq, err)
		}
		rec, err := decode(seq, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func encode(callID string, at int64, evt *types.Event) ([]byte, error) {
	rec := encodedRecord{CallID: callID, Time: uint64(at), Type: evt.Type}
	for i, v := range evt.Values {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %d (%T)", err, evt.Type, i, v)
		}
		rec.Values = append(rec.Values, ev)
	}
	return rlp.EncodeToBytes(&rec)
}

func encodeValue(v any) (encodedValue, error) {
	switch val := v.(type) {
	case nil:
		return encodedValue{Kind: kindNil}, nil
	case []byte:
		return encodedValue{Kind: kindBytes, Data: val}, nil
	case int64:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(val))
		return encodedValue{Kind: kindInt, Data: buf}, nil
	case bool:
		if val {
			return encodedValue{Kind: kindBool, Data: []byte{1}}, nil
		}
		return encodedValue{Kind: kindBool, Data: []byte{0}}, nil
	case string:
		return encodedValue{Kind: kindString, Data: []byte(val)}, nil
	}
	return encodedValue{}, ErrUnsupportedValue
}

func decode(seq uint64, raw []byte) (Record, error) {
	var rec encodedRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("eventlog: decode record %d: %w", seq, err)
	}
	evt := &types.Event{Type: rec.Type, Values: make([]any, 0, len(rec.Values))}
	for i, ev := range rec.Values {
		v, err := decodeValue(ev)
		if err != nil {
			return Record{}, fmt.Errorf("eventlog: record %d field %d: %w", seq, i, err)
		}
		evt.Values = append(evt.Values, v)
	}
	return Record{Seq: seq, CallID: rec.CallID, Time: int64(rec.Time), Event: evt}, nil
}

func decodeValue(ev encodedValue) (any, error) {
	switch ev.Kind {
	case kindNil:
		return nil, nil
	case kindBytes:
		if ev.Data == nil {
			return []byte{}, nil
		}
		return ev.Data, nil
	case kindInt:
		if len(ev.Data) != 8 {
			return nil, ErrUnsupportedValue
		}
		return int64(binary.BigEndian.Uint64(ev.Data)), nil
	case kindBool:
		return len(ev.Data) == 1 && ev.Data[0] == 1, nil
	case kindString:
		return string(ev.Data), nil
	}
	return nil, ErrUnsupportedValue
}
