package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"usdqs-ledger/internal/domain"
	"usdqs-ledger/internal/repository"
)

// S3Store keeps the user and account collections as versioned JSON snapshots
// in Amazon S3 (or compatible APIs). Each save rewrites one whole object.
type S3Store struct {
	client   ObjectClient
	uploader *manager.Uploader
	opts     Options
}

func NewS3Store(client ObjectClient, opts Options) *S3Store {
	opts.KeyPrefix = strings.Trim(opts.KeyPrefix, "/")
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		opts:     opts,
	}
}

func (s *S3Store) Init(ctx context.Context) error {
	if s.opts.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	return ctx.Err()
}

func (s *S3Store) LoadUsers(ctx context.Context) ([]domain.User, error) {
	var snap usersSnapshot
	found, err := s.getJSON(ctx, usersObject, &snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.User{}, nil
	}
	if err := checkVersion(usersObject, snap.Version); err != nil {
		return nil, err
	}
	return usersFromSnapshot(snap), nil
}

func (s *S3Store) SaveUsers(ctx context.Context, users []domain.User) error {
	return s.putJSON(ctx, usersObject, usersToSnapshot(users))
}

func (s *S3Store) LoadAccounts(ctx context.Context) ([]domain.Account, error) {
	var snap accountsSnapshot
	found, err := s.getJSON(ctx, accountsObject, &snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Account{}, nil
	}
	if err := checkVersion(accountsObject, snap.Version); err != nil {
		return nil, err
	}
	return accountsFromSnapshot(snap), nil
}

func (s *S3Store) SaveAccounts(ctx context.Context, accounts []domain.Account) error {
	return s.putJSON(ctx, accountsObject, accountsToSnapshot(accounts))
}

func (s *S3Store) key(object string) string {
	if s.opts.KeyPrefix == "" {
		return object
	}
	return path.Join(s.opts.KeyPrefix, object)
}

func (s *S3Store) getJSON(ctx context.Context, object string, dst any) (bool, error) {
	key := s.key(object)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := json.NewDecoder(out.Body).Decode(dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) putJSON(ctx context.Context, object string, v any) error {
	key := s.key(object)
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

var _ repository.Store = (*S3Store)(nil)
