// Пакет model — доменные модели docview.
// CacheEntry — единая структура описания закэшированного исходника,
// используется как in-memory представление, как формат attr.json на диске
// и как запись в Redis.
package model

import (
	"crypto/md5" //nolint:gosec // не криптография, только стабильный ключ кэша
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

// SourceKind — вид источника документа.
type SourceKind string

const (
	// SourceURL — удалённый документ по http(s) URL
	SourceURL SourceKind = "url"
	// SourcePath — локальный файл на хосте
	SourcePath SourceKind = "path"
)

// CacheKeyPrefix — префикс ключа записи кэша во внешнем индексе.
const CacheKeyPrefix = "aview:file:"

// SourceDescriptor — ровно один из вариантов: URL или локальный путь.
type SourceDescriptor struct {
	Kind  SourceKind
	Value string
}

// NewRemoteURL создаёт дескриптор удалённого источника.
func NewRemoteURL(rawURL string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceURL, Value: rawURL}
}

// NewLocalPath создаёт дескриптор локального источника.
func NewLocalPath(path string) SourceDescriptor {
	return SourceDescriptor{Kind: SourcePath, Value: path}
}

// FromParams собирает дескриптор из параметров запроса.
// Должен быть задан ровно один из параметров.
func FromParams(rawURL, path string) (SourceDescriptor, error) {
	switch {
	case rawURL != "" && path != "":
		return SourceDescriptor{}, fmt.Errorf("%w: укажите только один параметр: url или path", apperr.ErrInvalidSource)
	case rawURL != "":
		return NewRemoteURL(rawURL), nil
	case path != "":
		return NewLocalPath(path), nil
	default:
		return SourceDescriptor{}, fmt.Errorf("%w: необходимо указать url или path", apperr.ErrInvalidSource)
	}
}

// IsRemote — true для удалённого источника.
func (s SourceDescriptor) IsRemote() bool {
	return s.Kind == SourceURL
}

// Canonical возвращает канонический идентификатор источника:
// URL как есть, для локального файла — абсолютный путь без символических ссылок.
// Если путь не существует, используется абсолютный путь без разрешения ссылок.
func (s SourceDescriptor) Canonical() (string, error) {
	if s.IsRemote() {
		return s.Value, nil
	}
	abs, err := filepath.Abs(s.Value)
	if err != nil {
		return "", fmt.Errorf("%w: некорректный путь %q: %v", apperr.ErrInvalidSource, s.Value, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Fingerprint — md5 от канонического идентификатора в hex (32 символа).
func Fingerprint(canonical string) string {
	sum := md5.Sum([]byte(canonical)) //nolint:gosec // см. импорт
	return hex.EncodeToString(sum[:])
}

// CacheKey — ключ записи во внешнем индексе: aview:file:<fingerprint>.
func CacheKey(fingerprint string) string {
	return CacheKeyPrefix + fingerprint
}
