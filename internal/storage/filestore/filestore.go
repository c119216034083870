// Пакет filestore — операции с файлами в директориях кэша.
// Все записи атомарны: temp файл в той же директории → fsync → rename,
// поэтому читатель никогда не видит частично записанный файл.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	// ErrSourceRead — ошибка чтения входного потока (а не записи на диск).
	ErrSourceRead = errors.New("ошибка чтения источника")
	// ErrTooLarge — входной поток превышает лимит размера.
	ErrTooLarge = errors.New("превышен максимальный размер файла")
)

// tmpSuffix — суффикс временных файлов атомарной записи.
const tmpSuffix = ".tmp"

// FileStore — управление файлами в одной директории (кэш или результаты).
type FileStore struct {
	// dir — корневая директория
	dir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", abs, err)
	}

	return &FileStore{dir: abs}, nil
}

// Dir возвращает путь к директории.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// FullPath возвращает абсолютный путь к файлу name.
func (fs *FileStore) FullPath(name string) string {
	return filepath.Join(fs.dir, name)
}

// TempPath возвращает уникальный путь временного файла рядом с name.
func (fs *FileStore) TempPath(name string) string {
	return fs.FullPath(name) + "." + uuid.NewString()[:8] + tmpSuffix
}

// SaveFile записывает поток в файл name.
// maxBytes > 0 ограничивает размер: при превышении возвращается ErrTooLarge.
// Ошибки чтения потока оборачиваются в ErrSourceRead, остальные — ошибки записи.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, name string, maxBytes int64) (*SaveResult, error) {
	fullPath := fs.FullPath(name)
	tmpPath := fs.TempPath(name)

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := &trackingReader{r: reader}
	var in io.Reader = src
	if maxBytes > 0 {
		// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от превышения
		in = io.LimitReader(src, maxBytes+1)
	}

	size, err := io.Copy(f, in)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		if src.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceRead, src.err)
		}
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxBytes)
	}

	if err := syncAndRename(f, tmpPath, fullPath); err != nil {
		return nil, err
	}

	return &SaveResult{FullPath: fullPath, Size: size}, nil
}

// CopyFile копирует src в файл name с сохранением прав доступа
// и времени модификации исходника.
func (fs *FileStore) CopyFile(src, name string) (*SaveResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceRead, err)
	}

	fullPath := fs.FullPath(name)
	tmpPath := fs.TempPath(name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src2 := &trackingReader{r: in}
	size, err := io.Copy(f, src2)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		if src2.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceRead, src2.err)
		}
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// umask мог урезать права при создании
	if err := f.Chmod(info.Mode().Perm()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка установки прав: %w", err)
	}
	if err := syncAndRename(f, tmpPath, fullPath); err != nil {
		return nil, err
	}
	if err := os.Chtimes(fullPath, info.ModTime(), info.ModTime()); err != nil {
		return nil, fmt.Errorf("ошибка установки времени модификации: %w", err)
	}

	return &SaveResult{FullPath: fullPath, Size: size}, nil
}

// Publish атомарно перемещает готовый файл srcPath в name.
// srcPath должен находиться на той же файловой системе.
func (fs *FileStore) Publish(srcPath, name string) (string, error) {
	fullPath := fs.FullPath(name)
	if err := os.Rename(srcPath, fullPath); err != nil {
		return "", fmt.Errorf("ошибка атомарного переименования %s: %w", name, err)
	}
	return fullPath, nil
}

// Stat возвращает информацию об обычном файле name.
// ok=false, если файла нет или это не обычный файл.
func (fs *FileStore) Stat(name string) (os.FileInfo, bool) {
	info, err := os.Stat(fs.FullPath(name))
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return info, true
}

// FileExists проверяет существование обычного файла name.
func (fs *FileStore) FileExists(name string) bool {
	_, ok := fs.Stat(name)
	return ok
}

// DeleteFile удаляет файл с диска.
// Возвращает nil если файл уже не существует.
func (fs *FileStore) DeleteFile(name string) error {
	err := os.Remove(fs.FullPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", name, err)
	}
	return nil
}

// ReadFile открывает обычный файл name для чтения.
func (fs *FileStore) ReadFile(name string) (*os.File, error) {
	if _, ok := fs.Stat(name); !ok {
		return nil, fmt.Errorf("файл %s не найден: %w", name, os.ErrNotExist)
	}
	f, err := os.Open(fs.FullPath(name))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", name, err)
	}
	return f, nil
}

// Usage — число файлов и их суммарный размер в директории (без
// поддиректорий и временных файлов). skip отбрасывает служебные файлы.
func (fs *FileStore) Usage(skip func(name string) bool) (files int, bytes int64, err error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка чтения директории %s: %w", fs.dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || IsTempFile(e.Name()) || (skip != nil && skip(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}

// IsTempFile проверяет, является ли путь временным файлом атомарной записи.
func IsTempFile(path string) bool {
	return filepath.Ext(path) == tmpSuffix
}

// syncAndRename завершает запись: fsync → close → rename.
// При ошибке временный файл удаляется.
func syncAndRename(f *os.File, tmpPath, fullPath string) error {
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// trackingReader запоминает ошибку чтения, чтобы отличить её от ошибки записи.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
