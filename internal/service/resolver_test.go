package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/stats"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
	"github.com/bigkaa/goartstore/docview/internal/storage/index"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRecorder — UsageRecorder в памяти для проверок.
type memRecorder struct {
	mu          sync.Mutex
	conversions []stats.ConversionRecord
	errors      []string
}

func (r *memRecorder) LogConversion(_ context.Context, rec stats.ConversionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversions = append(r.conversions, rec)
	return nil
}

func (r *memRecorder) LogError(_ context.Context, kind, value, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, kind+"|"+value+"|"+message)
	return nil
}

func (r *memRecorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type resolverEnv struct {
	resolver *Resolver
	store    *filestore.FileStore
	idx      *index.MemoryIndex
	recorder *memRecorder
}

func setupResolver(t *testing.T) *resolverEnv {
	t.Helper()

	store, err := filestore.New(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	idx := index.NewMemoryIndex(100, 24*time.Hour, false, discardLogger())
	rec := &memRecorder{}
	r := NewResolver(idx, store, model.NewExtensionPolicy(model.DefaultAllowedExtensions), rec,
		ResolverConfig{TTL: time.Hour, HTTPTimeout: 5 * time.Second, MaxDownloadSize: 1 << 20},
		discardLogger())

	return &resolverEnv{resolver: r, store: store, idx: idx, recorder: rec}
}

func cacheFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ошибка чтения кэша: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestResolve_RemoteMissThenHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("a,b\n1,2\n"))
	}))
	defer srv.Close()

	env := setupResolver(t)
	src := model.NewRemoteURL(srv.URL + "/files/report.csv")

	first, hit, err := env.resolver.Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if hit {
		t.Error("первый запрос должен быть промахом")
	}
	if first.OriginalFilename != "report.csv" || first.Extension != ".csv" {
		t.Errorf("имя/расширение: получено %s / %s", first.OriginalFilename, first.Extension)
	}
	if first.Fingerprint != model.Fingerprint(src.Value) {
		t.Errorf("fingerprint должен вычисляться от URL")
	}
	if first.LocalPath != env.store.FullPath(first.Fingerprint+".csv") {
		t.Errorf("путь слота: получено %s", first.LocalPath)
	}

	second, hit, err := env.resolver.Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !hit {
		t.Error("второй запрос должен быть попаданием")
	}
	if second.LocalPath != first.LocalPath {
		t.Errorf("пути не совпадают: %s != %s", second.LocalPath, first.LocalPath)
	}
	if hits.Load() != 1 {
		t.Errorf("ожидалась 1 загрузка, выполнено %d", hits.Load())
	}
}

// TestResolve_StaleEntryIsMiss — запись индекса без файла считается промахом.
func TestResolve_StaleEntryIsMiss(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	env := setupResolver(t)
	src := model.NewRemoteURL(srv.URL + "/note.txt")

	entry, _, err := env.resolver.Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// Файл удалён «снаружи» (например, очисткой), запись индекса осталась
	if err := os.Remove(entry.LocalPath); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}

	again, hit, err := env.resolver.Resolve(context.Background(), src)
	if err != nil {
		t.Fatalf("устаревшая запись не должна давать ошибку: %v", err)
	}
	if hit {
		t.Error("устаревшая запись должна считаться промахом")
	}
	if _, err := os.Stat(again.LocalPath); err != nil {
		t.Errorf("файл должен быть загружен заново: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("ожидалось 2 загрузки, выполнено %d", hits.Load())
	}
}

// TestResolve_RejectsExtensionBeforeWrite — недопустимое расширение
// отклоняется, в кэш ничего не пишется.
func TestResolve_RejectsExtensionBeforeWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MZ binary"))
	}))
	defer srv.Close()

	env := setupResolver(t)

	_, _, err := env.resolver.Resolve(context.Background(), model.NewRemoteURL(srv.URL+"/setup.exe"))
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("ожидалась ErrUnsupportedFormat, получено %v", err)
	}
	if !errors.Is(err, apperr.ErrInvalidSource) {
		t.Error("ErrUnsupportedFormat должна быть разновидностью ErrInvalidSource")
	}
	if files := cacheFiles(t, env.store.Dir()); len(files) != 0 {
		t.Errorf("кэш должен остаться пустым, найдено %v", files)
	}
	if env.recorder.errorCount() != 1 {
		t.Errorf("ошибка должна попасть в журнал, записей: %d", env.recorder.errorCount())
	}
}

func TestResolve_ContentDispositionName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''%D0%BE%D1%82%D1%87%D1%91%D1%82.docx`)
		w.Write([]byte("docx"))
	}))
	defer srv.Close()

	env := setupResolver(t)
	entry, _, err := env.resolver.Resolve(context.Background(), model.NewRemoteURL(srv.URL+"/download?id=7"))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if entry.OriginalFilename != "отчёт.docx" {
		t.Errorf("имя файла: получено %q", entry.OriginalFilename)
	}
	if entry.Extension != ".docx" {
		t.Errorf("расширение: получено %q", entry.Extension)
	}
}

func TestResolve_NetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	env := setupResolver(t)

	_, _, err := env.resolver.Resolve(context.Background(), model.NewRemoteURL(srv.URL+"/doc.pdf"))
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("HTTP 404: ожидалась ErrNetwork, получено %v", err)
	}

	// Сервер недоступен
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	_, _, err = env.resolver.Resolve(context.Background(), model.NewRemoteURL(closedURL+"/doc.pdf"))
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Errorf("соединение: ожидалась ErrNetwork, получено %v", err)
	}

	if env.recorder.errorCount() != 2 {
		t.Errorf("обе ошибки должны попасть в журнал, записей: %d", env.recorder.errorCount())
	}
}

// TestResolve_StorageError — директория кэша подменена файлом: запись слота
// невозможна ни для удалённого, ни для локального источника.
func TestResolve_StorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	env := setupResolver(t)
	local := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(local, []byte("hello"), 0o640); err != nil {
		t.Fatalf("ошибка создания исходника: %v", err)
	}

	cacheDir := env.store.Dir()
	if err := os.RemoveAll(cacheDir); err != nil {
		t.Fatalf("ошибка удаления кэша: %v", err)
	}
	if err := os.WriteFile(cacheDir, []byte("not a dir"), 0o640); err != nil {
		t.Fatalf("ошибка подмены кэша: %v", err)
	}

	sources := []model.SourceDescriptor{
		model.NewRemoteURL(srv.URL + "/doc.txt"),
		model.NewLocalPath(local),
	}
	for _, src := range sources {
		_, _, err := env.resolver.Resolve(context.Background(), src)
		if !errors.Is(err, apperr.ErrStorage) {
			t.Errorf("%s: ожидалась ErrStorage, получено %v", src.Kind, err)
		}
		if errors.Is(err, apperr.ErrNetwork) {
			t.Errorf("%s: ошибка записи не должна считаться сетевой", src.Kind)
		}
	}

	if got := env.recorder.errorCount(); got != len(sources) {
		t.Errorf("ошибки должны попасть в журнал, записей: %d", got)
	}
	if env.idx.Len() != 0 {
		t.Errorf("индекс не должен содержать записей, получено %d", env.idx.Len())
	}
	data, err := os.ReadFile(cacheDir)
	if err != nil || string(data) != "not a dir" {
		t.Errorf("путь кэша изменён: %q, %v", data, err)
	}
}

// TestResolve_StorageErrorLeavesNoPartialFile — каталог кэша без права записи
// (не работает под root: права не проверяются).
func TestResolve_StorageErrorLeavesNoPartialFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("под root права каталога не ограничивают запись")
	}

	env := setupResolver(t)
	local := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(local, []byte("hello"), 0o640); err != nil {
		t.Fatalf("ошибка создания исходника: %v", err)
	}

	cacheDir := env.store.Dir()
	if err := os.Chmod(cacheDir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(cacheDir, 0o750) })

	_, _, err := env.resolver.Resolve(context.Background(), model.NewLocalPath(local))
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("ожидалась ErrStorage, получено %v", err)
	}
	if env.recorder.errorCount() != 1 {
		t.Errorf("ошибка должна попасть в журнал, записей: %d", env.recorder.errorCount())
	}
	if names := cacheFiles(t, cacheDir); len(names) != 0 {
		t.Errorf("в кэше не должно остаться файлов, найдено: %v", names)
	}
}

func TestResolve_InvalidURL(t *testing.T) {
	env := setupResolver(t)

	tests := []string{"ftp://host/file.pdf", "http:///file.pdf", "not a url.pdf"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, _, err := env.resolver.Resolve(context.Background(), model.NewRemoteURL(raw))
			if !errors.Is(err, apperr.ErrInvalidSource) {
				t.Errorf("ожидалась ErrInvalidSource, получено %v", err)
			}
		})
	}
}

func TestResolve_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()

	env := setupResolver(t)
	_, _, err := env.resolver.Resolve(context.Background(), model.NewRemoteURL(srv.URL+"/big.txt"))
	if !errors.Is(err, apperr.ErrInvalidSource) {
		t.Fatalf("ожидалась ErrInvalidSource, получено %v", err)
	}
	if files := cacheFiles(t, env.store.Dir()); len(files) != 0 {
		t.Errorf("кэш должен остаться пустым, найдено %v", files)
	}
}

func TestResolve_LocalCopy(t *testing.T) {
	env := setupResolver(t)

	srcPath := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(srcPath, []byte("x,y\n"), 0o640); err != nil {
		t.Fatalf("ошибка создания исходника: %v", err)
	}
	mtime := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	os.Chtimes(srcPath, mtime, mtime)

	entry, hit, err := env.resolver.Resolve(context.Background(), model.NewLocalPath(srcPath))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if hit {
		t.Error("первый запрос должен быть промахом")
	}

	// Оригинал не тронут
	if _, err := os.Stat(srcPath); err != nil {
		t.Fatalf("исходник должен остаться на месте: %v", err)
	}

	info, err := os.Stat(entry.LocalPath)
	if err != nil {
		t.Fatalf("копия не найдена: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("права: ожидалось 0640, получено %o", info.Mode().Perm())
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime: ожидалось %v, получено %v", mtime, info.ModTime())
	}
	if entry.OriginalFilename != "data.csv" {
		t.Errorf("имя файла: получено %s", entry.OriginalFilename)
	}

	// Относительный и абсолютный путь к одному файлу дают один fingerprint
	wd, _ := os.Getwd()
	if rel, err := filepath.Rel(wd, srcPath); err == nil {
		again, hit, err := env.resolver.Resolve(context.Background(), model.NewLocalPath(rel))
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if !hit || again.Fingerprint != entry.Fingerprint {
			t.Errorf("ожидалось попадание по тому же fingerprint, hit=%v", hit)
		}
	}
}

func TestResolve_LocalNotFound(t *testing.T) {
	env := setupResolver(t)

	_, _, err := env.resolver.Resolve(context.Background(),
		model.NewLocalPath(filepath.Join(t.TempDir(), "missing.docx")))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	// Директория — не обычный файл
	dir := filepath.Join(t.TempDir(), "folder.pdf")
	os.Mkdir(dir, 0o750)
	_, _, err = env.resolver.Resolve(context.Background(), model.NewLocalPath(dir))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("директория: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestResolve_ConcurrentMissesShareFetch — одновременные промахи по одному
// источнику выполняют одну загрузку.
func TestResolve_ConcurrentMissesShareFetch(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("# title\n"))
	}))
	defer srv.Close()

	env := setupResolver(t)
	src := model.NewRemoteURL(srv.URL + "/readme.md")

	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, _, err := env.resolver.Resolve(context.Background(), src)
			errs[i] = err
			if entry != nil {
				paths[i] = entry.LocalPath
			}
		}()
	}

	// Даём горутинам встать в ожидание
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("запрос %d: неожиданная ошибка %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("запрос %d: путь %s != %s", i, paths[i], paths[0])
		}
	}
	if hits.Load() != 1 {
		t.Errorf("ожидалась 1 загрузка, выполнено %d", hits.Load())
	}
}

func TestFilenameFromResponse(t *testing.T) {
	mustURL := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("некорректный URL %s: %v", raw, err)
		}
		return u
	}

	tests := []struct {
		name   string
		header string
		url    string
		want   string
	}{
		{"заголовок", `attachment; filename="plan.xlsx"`, "https://h/x", "plan.xlsx"},
		{"без кавычек", `inline; filename=plan.pptx`, "https://h/x", "plan.pptx"},
		{"RFC 5987", `attachment; filename*=UTF-8''%E6%96%87%E6%9B%B8.pdf`, "https://h/x", "文書.pdf"},
		{"путь в имени", `attachment; filename="../../etc/passwd.txt"`, "https://h/x", "passwd.txt"},
		{"сегмент URL", "", "https://h/docs/%D0%BF%D0%BB%D0%B0%D0%BD.docx?x=1", "план.docx"},
		{"пустой путь", "", "https://h/", DefaultFilename},
		{"битый заголовок", `attachment; filename=`, "https://h/a/b.csv", "b.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilenameFromResponse(tt.header, mustURL(tt.url)); got != tt.want {
				t.Errorf("ожидалось %q, получено %q", tt.want, got)
			}
		})
	}
}
