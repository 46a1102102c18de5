package feed

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Cursor is a snapshot of the sort-key values of the last item a source returned.
// Values are positional: Values[i] belongs to the i-th field of the sort
// configuration identified by Sort.
type Cursor struct {
	Sort   string   `json:"s"`
	Values []string `json:"v"`
}

// Matches reports whether the cursor was minted under sort.
func (c *Cursor) Matches(sort SortConfig) bool {
	if c == nil {
		return true
	}
	return c.Sort == sort.Fingerprint() && len(c.Values) == sort.Len()
}

const (
	cursorMinKeyBytes = 16
	maxCursorTokenLen = 4096
)

// CursorCodec turns cursors into opaque URL-safe tokens and back.
//
// With a key, tokens carry a keyed BLAKE2b-256 tag and decoding rejects any
// token whose tag does not verify. Without a key tokens are only encoded.
type CursorCodec struct {
	key []byte
}

// NewCursorCodec builds a codec. key may be empty; otherwise it must be 16..64 bytes.
func NewCursorCodec(key []byte) (*CursorCodec, error) {
	if len(key) > 0 && (len(key) < cursorMinKeyBytes || len(key) > blake2b.Size) {
		return nil, fmt.Errorf("feed: cursor key must be %d..%d bytes, got %d", cursorMinKeyBytes, blake2b.Size, len(key))
	}
	return &CursorCodec{key: append([]byte(nil), key...)}, nil
}

// Signed reports whether tokens are authenticated.
func (c *CursorCodec) Signed() bool { return c != nil && len(c.key) > 0 }

// Encode returns the token for cur. A nil cursor encodes to "".
func (c *CursorCodec) Encode(cur *Cursor) (string, error) {
	if cur == nil {
		return "", nil
	}
	raw, err := json.Marshal(cur)
	if err != nil {
		return "", fmt.Errorf("feed: encode cursor: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(raw)
	if !c.Signed() {
		return token, nil
	}

	tag, err := c.tag(raw)
	if err != nil {
		return "", err
	}
	return token + "." + base64.RawURLEncoding.EncodeToString(tag), nil
}

// Decode parses a token. An empty token decodes to a nil cursor.
func (c *CursorCodec) Decode(token string) (*Cursor, error) {
	const op = "feed.DecodeCursor"

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if len(token) > maxCursorTokenLen {
		return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "token too long"}
	}

	body, sig, hasSig := strings.Cut(token, ".")
	if c.Signed() != hasSig {
		return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "signature mismatch"}
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "bad encoding"}
	}

	if hasSig {
		got, err := base64.RawURLEncoding.DecodeString(sig)
		if err != nil {
			return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "bad signature encoding"}
		}
		want, err := c.tag(raw)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "signature mismatch"}
		}
	}

	var cur Cursor
	if err := json.Unmarshal(raw, &cur); err != nil {
		return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "bad payload"}
	}
	if cur.Sort == "" || len(cur.Values) == 0 {
		return nil, OpError{Op: op, Kind: ErrInvalidCursor, Msg: "empty cursor"}
	}
	return &cur, nil
}

func (c *CursorCodec) tag(raw []byte) ([]byte, error) {
	h, err := blake2b.New256(c.key)
	if err != nil {
		return nil, fmt.Errorf("feed: cursor mac: %w", err)
	}
	_, _ = h.Write(raw)
	return h.Sum(nil), nil
}
