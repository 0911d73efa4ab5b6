package services

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/akinalp/chatflow/pkg"
)

// SignedURLService, dosya içeriği için süreli ve imzalı görüntüleme URL'leri üretir.
//
// URL formatı: /api/files/{id}/content?exp=<unix>&sig=<mac>
// mac = BLAKE2b-256(key, "{id}|{exp}"), base64url (padding'siz).
//
// URL'i bilen herkes süre dolana kadar içeriğe erişebilir; bu yüzden
// lookup endpoint'i kimlik ve admission kontrolünün arkasındadır.
type SignedURLService interface {
	Sign(fileID string) (string, time.Time)
	Verify(fileID, exp, sig string) error
}

type signedURLService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSignedURLService, constructor.
// Secret herhangi bir uzunlukta olabilir; BLAKE2b anahtarı olarak özeti kullanılır.
func NewSignedURLService(secret string, ttl time.Duration) SignedURLService {
	key := blake2b.Sum256([]byte(secret))
	return &signedURLService{
		key: key[:],
		ttl: ttl,
		now: time.Now,
	}
}

// Sign, fileID için imzalı URL'i ve son geçerlilik anını döner.
func (s *signedURLService) Sign(fileID string) (string, time.Time) {
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)

	q := url.Values{}
	q.Set("exp", exp)
	q.Set("sig", s.mac(fileID, exp))
	return fmt.Sprintf("/api/files/%s/content?%s", url.PathEscape(fileID), q.Encode()), expiresAt
}

// Verify, imzayı ve süreyi kontrol eder. Hatalar pkg.ErrForbidden sarar.
func (s *signedURLService) Verify(fileID, exp, sig string) error {
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || sig == "" {
		return fmt.Errorf("%w: malformed signature", pkg.ErrForbidden)
	}

	want := s.mac(fileID, exp)
	if subtle.ConstantTimeCompare([]byte(want), []byte(sig)) != 1 {
		return fmt.Errorf("%w: invalid signature", pkg.ErrForbidden)
	}

	if s.now().Unix() > expUnix {
		return fmt.Errorf("%w: url expired", pkg.ErrForbidden)
	}

	return nil
}

func (s *signedURLService) mac(fileID, exp string) string {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// 32 baytlık anahtar her zaman geçerlidir.
		panic(err)
	}
	h.Write([]byte(fileID + "|" + exp))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
