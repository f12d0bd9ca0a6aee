package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/atweet/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ CredentialStore = (*FirestoreStorage)(nil)

// FirestoreStorage stores each option as one document, keyed by option name,
// in a dedicated collection.
//
// Every operation reads and writes through to Firestore so that several
// processes of the same deployment see one credential.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// OptionDoc is the document stored per option
type OptionDoc struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Using Firestore credential store", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

func (s *FirestoreStorage) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key)
}

func (s *FirestoreStorage) Get(ctx context.Context, key string) (string, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get option %s from Firestore: %w", key, err)
	}

	var opt OptionDoc
	if err := snap.DataTo(&opt); err != nil {
		return "", fmt.Errorf("failed to unmarshal option %s: %w", key, err)
	}
	return opt.Value, nil
}

func (s *FirestoreStorage) Set(ctx context.Context, key, value string) error {
	_, err := s.doc(key).Set(ctx, OptionDoc{Value: value, UpdatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to store option %s in Firestore: %w", key, err)
	}
	return nil
}

// Delete removes the option; deleting a missing document is not an error in Firestore
func (s *FirestoreStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.doc(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete option %s from Firestore: %w", key, err)
	}
	return nil
}

// UpdatePayload writes the five token documents in a single transaction
func (s *FirestoreStorage) UpdatePayload(ctx context.Context, tokens TokenSet) error {
	now := time.Now()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for key, value := range tokens.values() {
			if err := tx.Set(s.doc(key), OptionDoc{Value: value, UpdatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update token set in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) TokenSet(ctx context.Context) (TokenSet, error) {
	keys := []string{KeyAccessToken, KeyRefreshToken, KeyAccountID, KeyAccountName, KeyAccountUsername}
	refs := make([]*firestore.DocumentRef, len(keys))
	for i, key := range keys {
		refs[i] = s.doc(key)
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return TokenSet{}, fmt.Errorf("failed to read token set from Firestore: %w", err)
	}

	values := make(map[string]string, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var opt OptionDoc
		if err := snap.DataTo(&opt); err != nil {
			return TokenSet{}, fmt.Errorf("failed to unmarshal option %s: %w", snap.Ref.ID, err)
		}
		values[snap.Ref.ID] = opt.Value
	}
	return tokenSetFrom(func(key string) string { return values[key] }), nil
}

// Reset deletes every document in the options collection
func (s *FirestoreStorage) Reset(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("error iterating Firestore documents: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete option %s from Firestore: %w", doc.Ref.ID, err)
		}
		count++
	}

	log.LogInfoWithFields("storage", "Removed persisted options", map[string]any{
		"count":      count,
		"collection": s.collection,
	})
	return nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
