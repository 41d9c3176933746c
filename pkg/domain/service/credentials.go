package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	usernameLength    = 8
	usernamePrefixMax = 4
	passwordLength    = 10
	maxUsernameRetry  = 10
	fallbackDigits    = 6

	usernameAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	upperAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerAlphabet    = "abcdefghjkmnpqrstuvwxyz"
	digitAlphabet    = "23456789"
)

type Credentials struct {
	Username string
	Password string
}

// UsernameLookup reports whether a username is already in use.
type UsernameLookup func(ctx context.Context, username string) (bool, error)

// GenerateCredentials derives a username and password from seed. The same
// seed and name hint always give the same result.
func GenerateCredentials(seed, nameHint string) Credentials {
	stream := newSeedStream(seed)

	prefix := namePrefix(nameHint)
	username := make([]byte, 0, usernameLength)
	username = append(username, prefix...)
	for len(username) < usernameLength {
		username = append(username, stream.pick(usernameAlphabet))
	}

	password := []byte{
		stream.pick(upperAlphabet),
		stream.pick(lowerAlphabet),
		stream.pick(digitAlphabet),
	}
	mixed := upperAlphabet + lowerAlphabet + digitAlphabet
	for len(password) < passwordLength {
		password = append(password, stream.pick(mixed))
	}
	for i := len(password) - 1; i > 0; i-- {
		j := stream.intn(i + 1)
		password[i], password[j] = password[j], password[i]
	}

	return Credentials{Username: string(username), Password: string(password)}
}

// GenerateUniqueCredentials retries the base username with the suffixes 1..10
// and falls back to a clock-derived suffix. It always terminates; the
// fallback is not checked against exists.
func GenerateUniqueCredentials(ctx context.Context, seed, nameHint string, exists UsernameLookup, clock func() time.Time) (Credentials, error) {
	creds := GenerateCredentials(seed, nameHint)
	base := creds.Username

	for attempt := 0; attempt <= maxUsernameRetry; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = base + strconv.Itoa(attempt)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return Credentials{}, err
		}
		if !taken {
			creds.Username = candidate
			return creds, nil
		}
	}

	millis := strconv.FormatInt(clock().UnixMilli(), 10)
	if len(millis) > fallbackDigits {
		millis = millis[len(millis)-fallbackDigits:]
	}
	creds.Username = base[:usernamePrefixMax] + millis
	return creds, nil
}

func namePrefix(nameHint string) []byte {
	var prefix []byte
	for _, r := range strings.ToLower(nameHint) {
		if len(prefix) == usernamePrefixMax {
			break
		}
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			prefix = append(prefix, byte(r))
		}
	}
	return prefix
}

// seedStream is a deterministic byte source: sha256(seed:counter) blocks.
type seedStream struct {
	seed    string
	counter uint64
	buf     []byte
}

func newSeedStream(seed string) *seedStream {
	return &seedStream{seed: seed}
}

func (s *seedStream) next() uint32 {
	if len(s.buf) < 4 {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", s.seed, s.counter)))
		s.counter++
		s.buf = append(s.buf, sum[:]...)
	}
	v := binary.BigEndian.Uint32(s.buf[:4])
	s.buf = s.buf[4:]
	return v
}

func (s *seedStream) intn(n int) int {
	return int(s.next() % uint32(n))
}

func (s *seedStream) pick(alphabet string) byte {
	return alphabet[s.intn(len(alphabet))]
}
