// Package share turns list ids into the opaque strings carried by the QR
// sharing flow. The id passes through untransformed; a short HMAC tag lets
// the import side reject garbage scans instead of creating memberships for
// ids that never existed.
package share

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidCode is returned for malformed or tampered share codes.
var ErrInvalidCode = errors.New("share: invalid code")

const tagLen = 8 // bytes of the HMAC tag kept in the code

type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode produces the share code for a list id.
func (c *Codec) Encode(listID string) string {
	return listID + "." + hex.EncodeToString(c.tag(listID))
}

// Decode extracts and verifies the list id from a share code.
func (c *Codec) Decode(code string) (string, error) {
	i := strings.LastIndexByte(code, '.')
	if i <= 0 {
		return "", ErrInvalidCode
	}
	listID := code[:i]
	tag, err := hex.DecodeString(code[i+1:])
	if err != nil {
		return "", ErrInvalidCode
	}
	if !hmac.Equal(tag, c.tag(listID)) {
		return "", ErrInvalidCode
	}
	return listID, nil
}

func (c *Codec) tag(listID string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(listID))
	return mac.Sum(nil)[:tagLen]
}
