package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var errMissingID = errors.New("message is missing an id")

// StatementImportMessage asks the worker to import an uploaded statement.
type StatementImportMessage struct {
	FileID    string    `json:"fileId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionSyncMessage asks the worker to mirror a transaction. It carries
// only the id and version; the worker loads the current row itself.
type TransactionSyncMessage struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewStatementImportMessage(fileID, userID string) *StatementImportMessage {
	return &StatementImportMessage{FileID: fileID, UserID: userID, Timestamp: time.Now().UTC()}
}

func NewTransactionSyncMessage(transactionID, userID string, version int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{TransactionID: transactionID, UserID: userID, Version: version, Timestamp: time.Now().UTC()}
}

func (m *StatementImportMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func StatementImportMessageFromJSON(data []byte) (*StatementImportMessage, error) {
	var msg StatementImportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.FileID == "" {
		return nil, errMissingID
	}
	return &msg, nil
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" {
		return nil, errMissingID
	}
	return &msg, nil
}
