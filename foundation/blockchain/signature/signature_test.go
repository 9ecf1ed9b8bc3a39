package signature_test

import (
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

const (
	secret  = "alice_private"
	public  = "14702902db76359851439885d46152bc62f82feb6f5685aee04961c512ce7c98"
	message = `{"alice": -10, "bob": 10}`
	sigStr  = "6e9948d38d03d08d75d0b537633010072dff7b8d15777fe843cbc9960c447e9b"
)

// lookup is a single entry registry for testing.
type lookup map[string]string

func (l lookup) LookupSecret(publicKey string) (string, bool) {
	for _, secret := range l {
		if signature.PublicKey(secret) == publicKey {
			return secret, true
		}
	}
	return "", false
}

// =============================================================================

func Test_PublicKey(t *testing.T) {
	if got := signature.PublicKey(secret); got != public {
		t.Logf("got: %s", got)
		t.Logf("exp: %s", public)
		t.Fatalf("Should derive the right public credential.")
	}
}

func Test_Signing(t *testing.T) {
	sig := signature.Sign(message, secret)
	if sig != sigStr {
		t.Logf("got: %s", sig)
		t.Logf("exp: %s", sigStr)
		t.Fatalf("Should get back the right signature.")
	}

	keys := lookup{"alice": secret, "bob": "bob_private"}

	if !signature.Verify(message, sig, public, keys) {
		t.Fatalf("Should be able to verify the signature.")
	}

	if signature.Verify(`{"alice": -11, "bob": 11}`, sig, public, keys) {
		t.Fatalf("Should not verify the signature for a different message.")
	}

	if signature.Verify(message, sig, signature.PublicKey("bob_private"), keys) {
		t.Fatalf("Should not verify the signature against another credential.")
	}

	if signature.Verify(message, sig, signature.PublicKey("mallory_private"), keys) {
		t.Fatalf("Should not verify the signature for an unknown credential.")
	}

	if signature.Verify(message, sig, public, nil) {
		t.Fatalf("Should not verify the signature without a key registry.")
	}
}
