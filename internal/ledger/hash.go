package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainTransaction = "vault/transaction/v1"
	DomainSnapshot    = "vault/snapshot/v1"
	DomainCriteria    = "vault/criteria/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte keeps the domain/data boundary unambiguous.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransactionID computes the content-addressed id of a transaction.
func TransactionID(inputs []StateRef, outputs []Record, notary Party, salt string) (string, error) {
	in := make([]any, len(inputs))
	for i, ref := range inputs {
		in[i] = map[string]any{"txhash": ref.TxID, "index": ref.Index}
	}
	out := make([]any, len(outputs))
	for i, rec := range outputs {
		payload, err := ParseValue(rec.Payload)
		if err != nil {
			return "", fmt.Errorf("TransactionID: output %d: %w", i, err)
		}
		out[i] = map[string]any{"kind": string(rec.Kind), "data": payload}
	}

	canonical, err := MarshalCanonical(map[string]any{
		"inputs":  in,
		"outputs": out,
		"notary":  string(notary),
		"salt":    salt,
	})
	if err != nil {
		return "", fmt.Errorf("TransactionID: failed to marshal: %w", err)
	}
	return HashWithDomain(DomainTransaction, canonical), nil
}
