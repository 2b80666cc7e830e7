// Package imagecheck vets uploaded profile images before they are accepted.
// Two screens are applied in order: a content-hash lookup that rejects images
// already used by another account (stolen-photo control), then an NSFW score
// from an external classifier. The policy on internal failure is fail-open:
// an unavailable classifier or store must not make uploads impossible.
package imagecheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
)

// NSFWThreshold is the score above which an image is rejected.
const NSFWThreshold = 0.7

// Result is the vetting outcome. Reason is only set when Allowed is false
// and is safe to show to the uploading user.
type Result struct {
	Allowed bool
	Reason  string
}

// HashStore persists the hash-to-owner association for accepted images.
type HashStore interface {
	// Owner returns the user ID the hash is registered to, or "" if the
	// hash is unknown.
	Owner(ctx context.Context, hash string) (string, error)
	// Claim associates the hash with the user. Claiming an already-owned
	// hash for the same user is a no-op.
	Claim(ctx context.Context, hash, userID string) error
}

// NSFWClassifier scores image content in [0,1]. It is an optional
// capability: use NoopClassifier when no model is deployed.
type NSFWClassifier interface {
	ClassifyNSFW(ctx context.Context, image []byte) (float64, error)
}

// NoopClassifier always scores 0 (never rejects). Used when the NSFW model
// is not configured.
type NoopClassifier struct{}

func (NoopClassifier) ClassifyNSFW(context.Context, []byte) (float64, error) { return 0, nil }

// Vetter runs the vetting pipeline.
type Vetter struct {
	hashes HashStore
	nsfw   NSFWClassifier
}

// NewVetter creates a vetter. A nil classifier falls back to NoopClassifier.
func NewVetter(hashes HashStore, nsfw NSFWClassifier) *Vetter {
	if nsfw == nil {
		nsfw = NoopClassifier{}
	}
	return &Vetter{hashes: hashes, nsfw: nsfw}
}

// Vet checks an uploaded image for the given user. The duplicate-hash check
// runs before the NSFW screen and short-circuits it. Internal errors are
// logged and the image is allowed (fail-open).
func (v *Vetter) Vet(ctx context.Context, image []byte, userID string) Result {
	sum := sha256.Sum256(image)
	hash := hex.EncodeToString(sum[:])

	owner, err := v.hashes.Owner(ctx, hash)
	if err != nil {
		log.Printf("[imagecheck] hash lookup failed for user=%s: %v (failing open)", userID, err)
		return Result{Allowed: true}
	}
	if owner != "" && owner != userID {
		return Result{
			Allowed: false,
			Reason:  "Bild wird bereits von einem anderen Nutzer verwendet",
		}
	}

	score, err := v.nsfw.ClassifyNSFW(ctx, image)
	if err != nil {
		log.Printf("[imagecheck] nsfw classifier failed for user=%s: %v (failing open)", userID, err)
		return Result{Allowed: true}
	}
	if score > NSFWThreshold {
		return Result{
			Allowed: false,
			Reason:  "Unangemessenes Bild erkannt",
		}
	}

	if err := v.hashes.Claim(ctx, hash, userID); err != nil {
		// The image itself passed; losing the hash association is not a
		// reason to reject the upload.
		log.Printf("[imagecheck] hash claim failed for user=%s: %v", userID, err)
	}

	return Result{Allowed: true}
}
