package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rimnsai/rimns-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltArchive keeps discarded conversations in a BoltDB file. Transcripts are append only, the live
// conversation is never restored from it.
type BoltArchive struct {
	db *bolt.DB
}

var transcriptsBucket = []byte("transcripts")

// NewBoltArchive opens or creates the archive at path. The database file is created with 0600
// permissions if it doesn't exist.
func NewBoltArchive(path string) (BoltArchive, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltArchive{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transcriptsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltArchive{}, fmt.Errorf("failed to create bucket: %w", err)
	}

	return BoltArchive{db: db}, nil
}

// Save stores t under a key combining a sequence number with its ID, so iteration follows archive order.
func (b BoltArchive) Save(_ context.Context, t models.Transcript) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(transcriptsBucket)

		seq, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		t.ID = fmt.Sprintf("%020d-%s", seq, t.ID)

		v, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}

		return bk.Put([]byte(t.ID), v)
	})
}

// Transcripts retrieves all archived transcripts, newest first.
func (b BoltArchive) Transcripts(context.Context) ([]models.Transcript, error) {
	var transcripts []models.Transcript
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptsBucket).ForEach(func(_, v []byte) error {
			var t models.Transcript
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal transcript: %w", err)
			}
			transcripts = append(transcripts, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(transcripts)
	return transcripts, nil
}

// Transcript retrieves a single transcript by the ID it was stored under. An unknown ID yields
// models.ErrTranscriptNotFound.
func (b BoltArchive) Transcript(_ context.Context, id string) (models.Transcript, error) {
	var t models.Transcript
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(transcriptsBucket).Get([]byte(id))
		if v == nil {
			return models.ErrTranscriptNotFound
		}
		return json.Unmarshal(v, &t)
	})
	return t, err
}

// Close releases the database file.
func (b BoltArchive) Close() error {
	return b.db.Close()
}
