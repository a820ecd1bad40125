package keys

import (
	"testing"

	"github.com/mateodaza/galeon-sub004/internal/field"
)

func TestDeriveMasterKeysDeterministic(t *testing.T) {
	sig := []byte{1, 2, 3, 4, 5}

	k1 := DeriveMasterKeys(sig)
	k2 := DeriveMasterKeys(sig)

	if !field.Equal(k1.Nullifier, k2.Nullifier) || !field.Equal(k1.Secret, k2.Secret) {
		t.Fatal("master keys must be deterministic for the same signature")
	}
}

func TestDeriveMasterKeysDistinctScalars(t *testing.T) {
	sig := []byte{9, 9, 9}
	k := DeriveMasterKeys(sig)

	if field.Equal(k.Nullifier, k.Secret) {
		t.Fatal("nullifier and secret scalars must differ due to domain separation")
	}
}

func TestDeriveMasterKeysVariesWithSignature(t *testing.T) {
	k1 := DeriveMasterKeys([]byte{1})
	k2 := DeriveMasterKeys([]byte{2})

	if field.Equal(k1.Nullifier, k2.Nullifier) {
		t.Fatal("different signatures should yield different master nullifiers")
	}
}
