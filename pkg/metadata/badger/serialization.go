package badger

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// Records are serialized as JSON. The values are small (a few hundred
// bytes) and read-dominated, so the simplicity of JSON wins over a
// binary codec here.

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &metadata.StoreError{Code: metadata.ErrUnavailable, Message: "failed to encode record", Err: err}
	}
	return data, nil
}

func decodeRecord(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &metadata.StoreError{Code: metadata.ErrUnavailable, Message: "failed to decode record", Err: err}
	}
	return nil
}

// getValue reads a key's value inside a transaction. A missing key maps
// to found=false rather than an error so callers can express their own
// not-found semantics.
func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, backendError("failed to read key", err)
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, backendError("failed to copy value", err)
	}
	return data, true, nil
}

func getFolderTxn(txn *badger.Txn, id string) (*metadata.Folder, error) {
	data, found, err := getValue(txn, keyFolder(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "folder not found", Ref: id}
	}

	var folder metadata.Folder
	if err := decodeRecord(data, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

func getFileTxn(txn *badger.Txn, id string) (*metadata.File, error) {
	data, found, err := getValue(txn, keyFile(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "file not found", Ref: id}
	}

	var file metadata.File
	if err := decodeRecord(data, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func getGrantTxn(txn *badger.Txn, id string) (*metadata.ShareGrant, error) {
	data, found, err := getValue(txn, keyGrant(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "grant not found", Ref: id}
	}

	var grant metadata.ShareGrant
	if err := decodeRecord(data, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func setRecordTxn(txn *badger.Txn, key []byte, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	if err := txn.Set(key, data); err != nil {
		return backendError("failed to write record", err)
	}
	return nil
}
