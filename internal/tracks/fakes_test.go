package tracks_test

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
	"github.com/trackwave/trackwave/internal/queue"
	"github.com/trackwave/trackwave/internal/storage"
)

// fakeUserDirectory serves user snapshots from a map.
type fakeUserDirectory struct {
	users map[string]*domain.User
}

func (f *fakeUserDirectory) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "user", ID: id}
	}
	cp := *u
	return &cp, nil
}

// fakeQuotaLedger reserves against a single counter and records calls.
type fakeQuotaLedger struct {
	used     int64
	reserves []int64
	releases []int64
	err      error
}

func (f *fakeQuotaLedger) Reserve(_ context.Context, _ string, seconds, limit int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.reserves = append(f.reserves, seconds)
	if limit > 0 && f.used+seconds > limit {
		return false, nil
	}
	f.used += seconds
	return true, nil
}

func (f *fakeQuotaLedger) Release(_ context.Context, _ string, seconds int64) error {
	f.releases = append(f.releases, seconds)
	f.used -= seconds
	return nil
}

// fakeObjectStore keeps object bytes in memory.
type fakeObjectStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
	uploadErr    error
	statErr      error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (f *fakeObjectStore) UploadBuffer(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.contentTypes[key] = contentType
	return nil
}

func (f *fakeObjectStore) StatObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	data, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, errors.New("object not found: " + key)
	}
	return storage.ObjectInfo{Size: int64(len(data)), ContentType: f.contentTypes[key]}, nil
}

func (f *fakeObjectStore) GetObjectStream(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) GetObjectRange(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

// fakeJobQueue records enqueued payloads.
type fakeJobQueue struct {
	payloads []queue.TranscodePayload
	err      error
}

func (f *fakeJobQueue) EnqueueTranscode(_ context.Context, p queue.TranscodePayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}
