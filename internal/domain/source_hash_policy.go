package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SourceHashPolicy computes a stable hash for a source document so that
// unchanged files are not re-embedded.
type SourceHashPolicy interface {
	Compute(filename, content string) string
}

type sourceHashPolicy struct{}

func NewSourceHashPolicy() SourceHashPolicy {
	return &sourceHashPolicy{}
}

// Compute returns the hex SHA-256 of the trimmed filename and content. CRLF
// line endings are normalized so a checkout on another platform hashes the
// same.
func (p *sourceHashPolicy) Compute(filename, content string) string {
	name := strings.TrimSpace(filename)
	body := strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))

	hash := sha256.Sum256([]byte(name + "\x00" + body))
	return hex.EncodeToString(hash[:])
}
