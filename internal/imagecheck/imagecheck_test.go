package imagecheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

type fakeHashStore struct {
	owners   map[string]string
	ownerErr error
	claimErr error
	claims   int
}

func (f *fakeHashStore) Owner(_ context.Context, hash string) (string, error) {
	if f.ownerErr != nil {
		return "", f.ownerErr
	}
	return f.owners[hash], nil
}

func (f *fakeHashStore) Claim(_ context.Context, hash, userID string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claims++
	if _, ok := f.owners[hash]; !ok {
		f.owners[hash] = userID
	}
	return nil
}

type fakeNSFW struct {
	score  float64
	err    error
	called bool
}

func (f *fakeNSFW) ClassifyNSFW(context.Context, []byte) (float64, error) {
	f.called = true
	return f.score, f.err
}

func hashOf(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

func TestVet_CleanImage(t *testing.T) {
	store := &fakeHashStore{owners: map[string]string{}}
	nsfw := &fakeNSFW{score: 0.1}
	v := NewVetter(store, nsfw)

	img := []byte("image-bytes")
	res := v.Vet(context.Background(), img, "user-1")

	if !res.Allowed {
		t.Fatalf("Vet() = %+v, want allowed", res)
	}
	if store.owners[hashOf(img)] != "user-1" {
		t.Error("hash was not claimed for the uploader")
	}
}

func TestVet_DuplicateHashSkipsNSFW(t *testing.T) {
	img := []byte("stolen-photo")
	store := &fakeHashStore{owners: map[string]string{hashOf(img): "user-1"}}
	nsfw := &fakeNSFW{score: 0.0}
	v := NewVetter(store, nsfw)

	res := v.Vet(context.Background(), img, "user-2")

	if res.Allowed {
		t.Fatal("duplicate hash was allowed for a different user")
	}
	if res.Reason == "" {
		t.Error("rejection carries no reason")
	}
	if nsfw.called {
		t.Error("NSFW classifier was invoked despite the hash short-circuit")
	}
}

func TestVet_SameUserReupload(t *testing.T) {
	img := []byte("my-own-photo")
	store := &fakeHashStore{owners: map[string]string{hashOf(img): "user-1"}}
	v := NewVetter(store, &fakeNSFW{})

	res := v.Vet(context.Background(), img, "user-1")
	if !res.Allowed {
		t.Fatalf("same-user re-upload rejected: %+v", res)
	}
}

func TestVet_NSFWRejected(t *testing.T) {
	store := &fakeHashStore{owners: map[string]string{}}
	nsfw := &fakeNSFW{score: 0.9}
	v := NewVetter(store, nsfw)

	res := v.Vet(context.Background(), []byte("explicit"), "user-1")

	if res.Allowed {
		t.Fatal("image above NSFW threshold was allowed")
	}
	if store.claims != 0 {
		t.Error("hash was claimed for a rejected image")
	}
}

func TestVet_ThresholdIsExclusive(t *testing.T) {
	store := &fakeHashStore{owners: map[string]string{}}
	v := NewVetter(store, &fakeNSFW{score: NSFWThreshold})

	res := v.Vet(context.Background(), []byte("borderline"), "user-1")
	if !res.Allowed {
		t.Fatal("score exactly at the threshold must be allowed")
	}
}

func TestVet_FailOpen(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		store := &fakeHashStore{ownerErr: errors.New("db down")}
		v := NewVetter(store, &fakeNSFW{score: 0.9})

		res := v.Vet(context.Background(), []byte("img"), "user-1")
		if !res.Allowed {
			t.Fatal("store failure did not fail open")
		}
	})

	t.Run("classifier error", func(t *testing.T) {
		store := &fakeHashStore{owners: map[string]string{}}
		v := NewVetter(store, &fakeNSFW{err: errors.New("model unavailable")})

		res := v.Vet(context.Background(), []byte("img"), "user-1")
		if !res.Allowed {
			t.Fatal("classifier failure did not fail open")
		}
	})

	t.Run("claim error still allows", func(t *testing.T) {
		store := &fakeHashStore{owners: map[string]string{}, claimErr: errors.New("db down")}
		v := NewVetter(store, &fakeNSFW{score: 0.1})

		res := v.Vet(context.Background(), []byte("img"), "user-1")
		if !res.Allowed {
			t.Fatal("claim failure rejected an accepted image")
		}
	})
}

func TestVet_NilClassifierDefaultsToNoop(t *testing.T) {
	store := &fakeHashStore{owners: map[string]string{}}
	v := NewVetter(store, nil)

	res := v.Vet(context.Background(), []byte("img"), "user-1")
	if !res.Allowed {
		t.Fatal("noop classifier rejected an image")
	}
}
