// Пакет attr — чтение и запись файлов метаданных кэша (attr.json).
// Каждый слот кэша имеет сопутствующий *.attr.json с описанием записи,
// по которому in-memory индекс восстанавливается после перезапуска.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// AttrSuffix — суффикс файла метаданных.
const AttrSuffix = ".attr.json"

// maxAttrFileSize — максимальный допустимый размер attr.json (8 КБ).
// Длинные URL укладываются, запись остаётся одной страницей.
const maxAttrFileSize = 8192

// AttrFilePath возвращает путь к attr.json для слота кэша.
// Пример: "/cache/5d41….docx" → "/cache/5d41….docx.attr.json"
func AttrFilePath(dataFilePath string) string {
	return dataFilePath + AttrSuffix
}

// DataFilePathFromAttr возвращает путь к слоту из пути attr.json.
func DataFilePathFromAttr(attrPath string) string {
	return strings.TrimSuffix(attrPath, AttrSuffix)
}

// IsAttrFile проверяет, является ли путь файлом метаданных.
func IsAttrFile(path string) bool {
	return strings.HasSuffix(path, AttrSuffix)
}

// Write атомарно записывает запись кэша в attr.json файл.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func Write(path string, entry *model.CacheEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает запись кэша из attr.json файла.
func Read(path string) (*model.CacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения attr.json %s: %w", path, err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации attr.json %s: %w", path, err)
	}
	if entry.Fingerprint == "" {
		return nil, fmt.Errorf("attr.json %s: отсутствует fingerprint", path)
	}

	return &entry, nil
}

// Delete удаляет attr.json файл.
// Возвращает nil если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления attr.json %s: %w", path, err)
	}
	return nil
}

// ScanDir сканирует директорию и возвращает все записи кэша.
// Не рекурсивный: сканирует только указанную директорию.
// Невалидные attr.json пропускаются.
func ScanDir(dir string) ([]*model.CacheEntry, error) {
	pattern := filepath.Join(dir, "*"+AttrSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	var result []*model.CacheEntry
	for _, path := range matches {
		entry, err := Read(path)
		if err != nil {
			continue
		}
		result = append(result, entry)
	}

	return result, nil
}
