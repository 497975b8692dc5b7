package application

import (
	"context"
	"math/rand/v2"
)

// Look-alike characters such as 0/O and 1/I are left out.
const referenceAlphabet = "ACDEFHJKMNPRTUVWXY3479"

const (
	referenceLength      = 4
	maxReferenceAttempts = 32
)

func RandomReference() string {
	b := make([]byte, referenceLength)
	for i := range b {
		b[i] = referenceAlphabet[rand.IntN(len(referenceAlphabet))]
	}
	return string(b)
}

// allocateReference picks a free short reference. Once the short space is
// exhausted the order id is used, which no other order can hold.
func (s *Service) allocateReference(ctx context.Context, orderID string, attempt int) (string, error) {
	if attempt < maxReferenceAttempts {
		for i := 0; i < maxReferenceAttempts; i++ {
			ref := s.newReference()
			taken, err := s.repo.ReferenceExists(ctx, ref)
			if err != nil {
				return "", err
			}
			if !taken {
				return ref, nil
			}
		}
	}
	s.log.Warn("short references exhausted, using order id", "order_id", orderID)
	return orderID, nil
}
